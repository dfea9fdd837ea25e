package wsclient

import (
	"context"
	"net"
	"testing"
	"time"

	authhttp "carelog/internal/auth/adapter/http"
	authrepo "carelog/internal/auth/domain/repository"
	docstorehttp "carelog/internal/docstore/adapter/http"
	"carelog/internal/docstore/adapter/feed"
	"carelog/internal/docstore/adapter/persistence/memory"
	"carelog/internal/docstore/domain/model"
	"carelog/internal/docstore/gateway"
	"carelog/internal/shared/errors"
	"carelog/internal/shared/eventbus"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens struct{}

func (staticTokens) Token(_ context.Context, token string) (*authrepo.Claims, error) {
	if len(token) > 4 && token[:4] == "tok-" {
		return &authrepo.Claims{UserID: token[4:]}, nil
	}
	return nil, errors.NewAuthenticationError("invalid token")
}

func startServer(t *testing.T) (string, *gateway.Gateway) {
	t.Helper()
	gw := gateway.New(memory.NewBackend(nil), feed.NewLocalFeed(eventbus.NewEventBus(nil), nil), gateway.Config{}, nil, nil)
	policy, err := docstorehttp.NewPolicy("")
	require.NoError(t, err)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	v1 := app.Group("/v1", authhttp.NewAuthMiddleware(staticTokens{}, "session").Optional())
	docstorehttp.NewDocumentHandler(gw, policy, nil).RegisterRoutes(v1)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })
	return "http://" + ln.Addr().String(), gw
}

func TestTarget_URL(t *testing.T) {
	u, err := Target{
		BaseURL:    "https://api.example.com/",
		Owner:      "u1",
		Collection: "routines",
		Where:      []string{"kidId:==:k1", "date:gte:2024-05-01T00:00:00Z"},
		OrderBy:    "date:desc",
	}.URL()
	require.NoError(t, err)
	assert.Equal(t, "wss://api.example.com/v1/listen/users/u1/routines?orderBy=date%3Adesc&where=kidId%3A%3D%3D%3Ak1&where=date%3Agte%3A2024-05-01T00%3A00%3A00Z", u)

	_, err = Target{BaseURL: "ftp://x", Owner: "u1", Collection: "kids"}.URL()
	assert.True(t, errors.IsConfiguration(err))
	_, err = Target{BaseURL: "http://x", Collection: "kids"}.URL()
	assert.True(t, errors.IsConfiguration(err))
}

func TestStream_DeliversUntilCancelled(t *testing.T) {
	base, gw := startServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	frames := make(chan docstorehttp.ListenMessage, 16)
	done := make(chan error, 1)
	go func() {
		done <- New("tok-u1", nil).Stream(ctx, Target{BaseURL: base, Owner: "u1", Collection: "kids"}, func(msg docstorehttp.ListenMessage) error {
			frames <- msg
			return nil
		})
	}()

	next := func() docstorehttp.ListenMessage {
		select {
		case msg := <-frames:
			return msg
		case err := <-done:
			t.Fatalf("stream ended early: %v", err)
		case <-time.After(2 * time.Second):
			t.Fatal("no frame received")
		}
		return docstorehttp.ListenMessage{}
	}

	first := next()
	assert.Equal(t, docstorehttp.MessageSnapshot, first.Type)
	assert.Empty(t, first.Documents)

	_, err := gw.AddDocument(context.Background(), model.MustResolve(model.KindKid, "u1"), model.Fields{"fullname": "Mia"})
	require.NoError(t, err)
	second := next()
	require.Len(t, second.Documents, 1)
	assert.Equal(t, "Mia", second.Documents[0].Fields["fullname"])

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop")
	}
}

func TestStream_Refused(t *testing.T) {
	base, _ := startServer(t)
	noop := func(docstorehttp.ListenMessage) error { return nil }

	err := New("tok-u2", nil).Stream(context.Background(), Target{BaseURL: base, Owner: "u1", Collection: "kids"}, noop)
	assert.True(t, errors.IsAuthorization(err))

	err = New("tok-u1", nil).Stream(context.Background(), Target{BaseURL: base, Owner: "u1", Collection: "pets"}, noop)
	assert.True(t, errors.IsNotFound(err))

	err = New("tok-u1", nil).Stream(context.Background(), Target{BaseURL: base, Owner: "u1", Collection: "kids", Where: []string{"a:like:b"}}, noop)
	assert.True(t, errors.IsValidation(err))
}

func TestStream_HandlerErrorStops(t *testing.T) {
	base, _ := startServer(t)
	stop := errors.NewValidationError("enough")
	err := New("tok-u1", nil).Stream(context.Background(), Target{BaseURL: base, Owner: "u1", Collection: "kids"}, func(docstorehttp.ListenMessage) error {
		return stop
	})
	assert.Same(t, stop, err)
}

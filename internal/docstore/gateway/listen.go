package gateway

import (
	"carelog/internal/docstore/domain/model"
)

// DecodeFunc turns one snapshot into a typed record.
type DecodeFunc[T any] func(model.Snapshot) (T, error)

// Listen subscribes and decodes each delivery with decode. If any snapshot of a
// delivery fails to decode, the whole delivery is reported as that error.
func Listen[T any](g *Gateway, path model.CollectionPath, spec *model.QuerySpec, decode DecodeFunc[T], onUpdate func([]T, error)) (*Subscription, error) {
	return g.SubscribeToCollection(path, spec, func(snaps []model.Snapshot, err error) {
		if err != nil {
			onUpdate(nil, err)
			return
		}
		items, err := DecodeAll(snaps, decode)
		if err != nil {
			onUpdate(nil, err)
			return
		}
		onUpdate(items, nil)
	})
}

// DecodeAll decodes snaps in order and stops at the first failure.
func DecodeAll[T any](snaps []model.Snapshot, decode DecodeFunc[T]) ([]T, error) {
	items := make([]T, 0, len(snaps))
	for _, snap := range snaps {
		item, err := decode(snap)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

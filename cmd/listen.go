package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	docstorehttp "carelog/internal/docstore/adapter/http"
	"carelog/internal/docstore/adapter/wsclient"
	"carelog/internal/shared/logger"

	"github.com/spf13/cobra"
)

var listenOpts struct {
	url     string
	token   string
	where   []string
	orderBy string
}

var listenCmd = &cobra.Command{
	Use:   "listen <owner> <collection>",
	Short: "Print a live query as JSON lines",
	Long: `Open a live query against a running server and print every snapshot as one
JSON line until interrupted.

Example:
  carelog listen u1 routines --where kidId:==:k1 --order-by date:desc --token $TOKEN`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		token := listenOpts.token
		if token == "" {
			token = os.Getenv("CARELOG_TOKEN")
		}
		out := json.NewEncoder(cmd.OutOrStdout())
		client := wsclient.New(token, logger.NewLoggerWithOutput("warn", "text", cmd.ErrOrStderr()))
		return client.Stream(ctx, wsclient.Target{
			BaseURL:    listenOpts.url,
			Owner:      args[0],
			Collection: args[1],
			Where:      listenOpts.where,
			OrderBy:    listenOpts.orderBy,
		}, func(msg docstorehttp.ListenMessage) error {
			return out.Encode(msg)
		})
	},
}

func init() {
	f := listenCmd.Flags()
	f.StringVar(&listenOpts.url, "url", "http://localhost:3000", "API base URL")
	f.StringVar(&listenOpts.token, "token", "", "session token (default $CARELOG_TOKEN)")
	f.StringArrayVar(&listenOpts.where, "where", nil, "filter as field:operator:value, repeatable")
	f.StringVar(&listenOpts.orderBy, "order-by", "", "sort as field[:desc]")
}

package main

import (
	"toolrepro/internal/mockserver"

	"github.com/spf13/cobra"
)

func newMockCmd() *cobra.Command {
	var (
		addr      string
		behaviour string
		key       string
		location  string
	)

	cmd := &cobra.Command{
		Use:   "mock",
		Short: "Serve an offline OpenAI-compatible endpoint that can reproduce the empty reply",
		Long: `mock serves POST /v1/chat/completions. The first request gets a get_weather
tool call; the reply to the tool result depends on --behaviour:

  summary           a short non-empty summary
  empty-after-tool  "content": "" (the defect under investigation)
  malformed         a response with no choices`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := mockserver.ParseBehaviour(behaviour)
			if err != nil {
				return err
			}

			server := mockserver.New(mockserver.Options{
				Behaviour: b,
				APIKey:    key,
				Location:  location,
				Logger:    newLogger(),
			})
			return server.ListenAndServe(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8089", "Listen address")
	cmd.Flags().StringVar(&behaviour, "behaviour", string(mockserver.BehaviourSummary), "summary, empty-after-tool or malformed")
	cmd.Flags().StringVar(&key, "require-key", "", "Reject requests without this bearer token")
	cmd.Flags().StringVar(&location, "location", mockserver.DefaultLocation, "Location passed in the mock tool call")

	return cmd
}

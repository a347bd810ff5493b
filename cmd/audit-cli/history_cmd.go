package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/iota-uz/backoffice/modules/audit/domain/resource"
	"github.com/iota-uz/backoffice/modules/audit/presentation/mappers"
	"github.com/iota-uz/backoffice/modules/audit/services"
)

func newHistoryCmd() *cobra.Command {
	var (
		resourceType string
		resourceID   string
		fields       string
		actorID      string
		role         string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the edit sessions of one record",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := parseActor(actorID, role)
			if err != nil {
				return err
			}
			typ, err := resource.ParseType(resourceType)
			if err != nil {
				return err
			}
			ref := resource.Ref{Type: typ, ID: resourceID}

			s, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			var order []string
			if fields != "" {
				order = strings.Split(fields, ",")
			}
			historyService := s.app.Service(services.HistoryService{}).(*services.HistoryService)
			history, err := historyService.History(s.ctx, actor, ref, order)
			if err != nil {
				return err
			}
			return writeJSON(mappers.HistoryToViewModel(ref, history))
		},
	}

	cmd.Flags().StringVar(&resourceType, "type", "", "Resource type (required)")
	cmd.Flags().StringVar(&resourceID, "id", "", "Resource id (required)")
	cmd.Flags().StringVar(&fields, "fields", "", "Comma-separated field order for the diff")
	cmd.Flags().StringVar(&actorID, "actor", "", "Actor UUID (required)")
	cmd.Flags().StringVar(&role, "role", "admin", "Actor role")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

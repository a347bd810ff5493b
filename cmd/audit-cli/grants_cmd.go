package main

import (
	"github.com/spf13/cobra"

	"github.com/iota-uz/backoffice/modules/audit/domain/entities/editgrant"
	"github.com/iota-uz/backoffice/modules/audit/domain/resource"
	"github.com/iota-uz/backoffice/modules/audit/presentation/mappers"
	"github.com/iota-uz/backoffice/modules/audit/services"
)

func newGrantsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grants",
		Short: "Inspect edit grants",
	}
	cmd.AddCommand(newGrantsListCmd())
	return cmd
}

func newGrantsListCmd() *cobra.Command {
	var (
		status       string
		resourceType string
		resourceID   string
		actorID      string
		role         string
		limit        int
		offset       int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List edit grants visible to the actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := parseActor(actorID, role)
			if err != nil {
				return err
			}
			params := services.ListGrantsParams{ResourceID: resourceID, Limit: limit, Offset: offset}
			if status != "" {
				if params.Status, err = editgrant.ParseStatus(status); err != nil {
					return err
				}
			}
			if resourceType != "" {
				if params.ResourceType, err = resource.ParseType(resourceType); err != nil {
					return err
				}
			}

			s, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			grantService := s.app.Service(services.GrantService{}).(*services.GrantService)
			grants, total, err := grantService.List(s.ctx, actor, params)
			if err != nil {
				return err
			}
			return writeJSON(mappers.EditGrantsToViewModel(grants, total))
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (pending, approved, rejected)")
	cmd.Flags().StringVar(&resourceType, "type", "", "Filter by resource type")
	cmd.Flags().StringVar(&resourceID, "id", "", "Filter by resource id")
	cmd.Flags().StringVar(&actorID, "actor", "", "Actor UUID (required)")
	cmd.Flags().StringVar(&role, "role", "admin", "Actor role")
	cmd.Flags().IntVar(&limit, "limit", 50, "Page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "Page offset")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

package main

import (
	"errors"
	"io"
	"os"
	"reflect"

	"github.com/spf13/cobra"

	"github.com/iota-uz/backoffice/modules/audit"
	"github.com/iota-uz/backoffice/modules/audit/domain/resource"
	fv "github.com/iota-uz/backoffice/modules/audit/domain/value_objects/fieldvalue"
)

func newResourceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resource",
		Short: "Seed records without auditing",
	}
	cmd.AddCommand(newResourcePutCmd())
	return cmd
}

func newResourcePutCmd() *cobra.Command {
	var (
		resourceType string
		resourceID   string
		file         string
	)

	cmd := &cobra.Command{
		Use:   "put",
		Short: "Create or replace a record from a JSON object",
		RunE: func(cmd *cobra.Command, args []string) error {
			typ, err := resource.ParseType(resourceType)
			if err != nil {
				return err
			}
			var in io.Reader = os.Stdin
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				in = f
			}
			raw, err := io.ReadAll(in)
			if err != nil {
				return err
			}
			fields, err := fv.ParseObject(raw)
			if err != nil {
				return err
			}

			s, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			records, ok := s.app.Services()[reflect.TypeOf(audit.Records{})].(*audit.Records)
			if !ok {
				return errors.New("configured resource store does not support seeding")
			}
			ref := resource.Ref{Type: typ, ID: resourceID}
			if err := records.Put(s.ctx, ref, fields); err != nil {
				return err
			}
			return writeJSON(map[string]any{"type": ref.Type, "id": ref.ID, "fields": fields})
		},
	}

	cmd.Flags().StringVar(&resourceType, "type", "", "Resource type (required)")
	cmd.Flags().StringVar(&resourceID, "id", "", "Resource id (required)")
	cmd.Flags().StringVarP(&file, "file", "f", "-", "JSON file, - for stdin")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

package main

import (
	"github.com/spf13/cobra"

	"github.com/packmill/packmill/internal/config"
)

var configSchemaCmd = &cobra.Command{
	Use:   "config-schema",
	Short: "Print the JSON schema for the configuration file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		bs, err := config.ReflectSchema()
		if err != nil {
			return err
		}
		cmd.Println(string(bs))
		return nil
	},
}

package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/theory-cloud/musicapi/pkg/cache"
)

func newFingerprintCmd() *cobra.Command {
	opts := cache.DefaultOptions()
	var method string

	cmd := &cobra.Command{
		Use:   "fingerprint <path[?query]>",
		Short: "Print the response cache key for a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := url.Parse(args[0])
			if err != nil {
				return err
			}
			key := cache.Fingerprint(strings.ToUpper(method), u.Path, u.Query(), opts)
			_, err = fmt.Fprintln(cmd.OutOrStdout(), key)
			return err
		},
	}
	cmd.Flags().StringVar(&method, "method", "GET", "request method")
	cmd.Flags().StringVar(&opts.StripPrefix, "strip-prefix", opts.StripPrefix, "path prefix removed before keying")
	cmd.Flags().BoolVar(&opts.IncludeMethod, "include-method", opts.IncludeMethod, "key on the request method")
	cmd.Flags().BoolVar(&opts.IncludeQuery, "include-query", opts.IncludeQuery, "key on the query string")
	return cmd
}

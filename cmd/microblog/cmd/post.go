package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/microblog/internal/output"
)

func newPostCmd() *cobra.Command {
	var (
		userID   int64
		language string
		format   string
	)

	cmd := &cobra.Command{
		Use:   "post <body>",
		Short: "Publish a post",
		Long: `Publish a post as an existing user. The post is indexed for search
once it is committed.`,
		Example: `  microblog post "hello gophers" --user 1`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.New(cmd.OutOrStdout())

			a, err := openApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			p, err := a.CreatePost(cmd.Context(), userID, strings.Join(args, " "), language)
			if err != nil {
				return err
			}

			if format == "json" {
				return out.JSON(p)
			}
			out.Successf("Post %d published", p.ID)
			return nil
		},
	}

	cmd.Flags().Int64VarP(&userID, "user", "u", 0, "Author user ID")
	cmd.Flags().StringVarP(&language, "language", "l", "", "Language code of the post")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}
	cmd.AddCommand(newUserAddCmd())
	return cmd
}

func newUserAddCmd() *cobra.Command {
	var (
		email string
		about string
	)

	cmd := &cobra.Command{
		Use:     "add <username>",
		Short:   "Create a user",
		Example: `  microblog user add susan --email susan@example.com`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.New(cmd.OutOrStdout())

			a, err := openApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			u, err := a.CreateUser(cmd.Context(), args[0], email, about)
			if err != nil {
				return err
			}
			out.Successf("User %s created (id %d)", u.Username, u.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Email address")
	cmd.Flags().StringVar(&about, "about", "", "Short profile text")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

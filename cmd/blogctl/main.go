package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"alcyxob/blog-publisher/internal/app"
	"alcyxob/blog-publisher/internal/asyncop"
	"alcyxob/blog-publisher/internal/config"
	"alcyxob/blog-publisher/internal/domain"
	"alcyxob/blog-publisher/internal/logging"
	"alcyxob/blog-publisher/internal/publish"
)

type cli struct {
	configPath string
	app        *app.App
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	c := &cli{}
	err := c.rootCmd().ExecuteContext(ctx)
	if c.app != nil {
		if cerr := c.app.Close(); cerr != nil {
			fmt.Fprintln(os.Stderr, "shutdown:", cerr)
		}
	}
	if err != nil {
		os.Exit(1)
	}
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "blogctl",
		Short:        "Publish and synchronize blog posts",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", ".", "directory containing config.yaml")

	root.AddCommand(c.publishCmd(), c.syncCmd(), c.openCmd(), c.serveCmd(), c.tokenCmd())
	return root
}

func (c *cli) init(ctx context.Context) error {
	cfg, err := config.LoadConfig(c.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a, err := app.New(ctx, cfg, logging.Setup(cfg.Log))
	if err != nil {
		return err
	}
	c.app = a
	return nil
}

func (c *cli) publishCmd() *cobra.Command {
	var draft bool
	cmd := &cobra.Command{
		Use:   "publish <draftID>",
		Short: "Upload supporting files and submit a stored post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := primitive.ObjectIDFromHex(args[0])
			if err != nil {
				return fmt.Errorf("invalid post id %q", args[0])
			}
			if err := c.init(cmd.Context()); err != nil {
				return err
			}
			op := c.app.Publish.StartPublish(cmd.Context(), id, !draft)
			for ev := range op.Events() {
				if ev.Kind == asyncop.EventProgress {
					fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", ev.Progress.Step)
				}
			}
			res, err := op.Wait()
			if err != nil {
				return err
			}
			if publish.ClassifyOutcome(res, nil) == publish.OutcomeDegraded {
				fmt.Fprintf(cmd.ErrOrStderr(), "published with warnings: %v\n", res.AfterPublishErr)
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().BoolVar(&draft, "draft", false, "save as a draft on the blog instead of publishing")
	return cmd
}

func (c *cli) syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync <draftID>",
		Short: "Reconcile a stored post with the copy on the blog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := primitive.ObjectIDFromHex(args[0])
			if err != nil {
				return fmt.Errorf("invalid post id %q", args[0])
			}
			if err := c.init(cmd.Context()); err != nil {
				return err
			}
			ec, err := c.app.Sync.Sync(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd, ec)
		},
	}
}

func (c *cli) openCmd() *cobra.Command {
	var page bool
	cmd := &cobra.Command{
		Use:   "open <remotePostID>",
		Short: "Open a post from the blog, reusing a local copy when one exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.init(cmd.Context()); err != nil {
				return err
			}
			ec, err := c.app.Sync.OpenRemote(cmd.Context(), args[0], page)
			if err != nil {
				return err
			}
			return printJSON(cmd, ec)
		},
	}
	cmd.Flags().BoolVar(&page, "page", false, "the remote id names a page, not a post")
	return cmd
}

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.init(cmd.Context()); err != nil {
				return err
			}
			return c.app.Serve(cmd.Context())
		},
	}
}

func (c *cli) tokenCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue an API bearer token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.init(cmd.Context()); err != nil {
				return err
			}
			token, err := c.app.Auth.IssueToken(args[0], domain.Role(role))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", string(domain.RoleEditor), "editor or publisher")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

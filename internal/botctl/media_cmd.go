package botctl

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/oremus-labs/ol-bot-console/internal/dashboard"
)

var mediaCmd = &cobra.Command{
	Use:   "media",
	Short: "Download and upload chat attachments",
}

var mediaGetCmd = &cobra.Command{
	Use:   "get <filename>",
	Short: "Download an attachment (prints the local path, or the bytes with --stdout)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, ctx, err := mustClient()
		if err != nil {
			return err
		}
		dir, _ := cmd.Flags().GetString("dir")
		if dir != "" {
			client = dashboard.New(dashboard.Options{BaseURL: ctx.Server, Credentials: tokenSource(ctx), CacheDir: dir})
		}
		path, err := client.GetFile(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if toStdout, _ := cmd.Flags().GetBool("stdout"); toStdout {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			_, err = io.Copy(cmd.OutOrStdout(), f)
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

var mediaUploadCmd = &cobra.Command{
	Use:   "upload <path>...",
	Short: "Upload files as chat attachments",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := mustClient()
		if err != nil {
			return err
		}
		var staged dashboard.Staging
		for _, path := range args {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			att, err := client.UploadFile(cmd.Context(), path, f)
			f.Close()
			if err != nil {
				return fmt.Errorf("upload %s: %w", path, err)
			}
			staged.AddUpload(att, filepath.Base(path))
		}
		if handled, err := writeOutput(cmd, staged.Files()); handled {
			return err
		}
		tw := newTable(cmd)
		fmt.Fprintf(tw, "ATTACHMENT\tFILENAME\tORIGINAL\tTYPE\n")
		for _, f := range staged.Images() {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.AttachmentID, f.Filename, f.OriginalName, f.Type)
		}
		for _, f := range staged.NonImages() {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.AttachmentID, f.Filename, f.OriginalName, f.Type)
		}
		flushTable(tw)
		return nil
	},
}

func init() {
	mediaGetCmd.Flags().String("dir", "", "Download directory (defaults to a temp cache)")
	mediaGetCmd.Flags().Bool("stdout", false, "Write the file to stdout")
	mediaCmd.AddCommand(mediaGetCmd, mediaUploadCmd)
}

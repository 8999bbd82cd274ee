package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/andresmejia3/faceroll/internal/capture"
	"github.com/andresmejia3/faceroll/internal/enroll"
	"github.com/andresmejia3/faceroll/internal/types"
	"github.com/andresmejia3/faceroll/internal/utils"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	enrollName  string
	enrollImage string
	enrollDir   string
)

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Add a face to the gallery",
	Long: `Enrolls the first face found in a camera frame or --image under --name
(prompted for when omitted).

With --dir every photo in the directory is enrolled under a name taken from
its file name: Ada_Lovelace.jpg becomes "Ada Lovelace".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if enrollDir != "" {
			return runEnrollDir(cmd)
		}
		return runEnroll(cmd)
	},
}

func init() {
	enrollCmd.Flags().StringVarP(&enrollName, "name", "n", "", "Name of the person (prompted when empty)")
	enrollCmd.Flags().StringVar(&enrollImage, "image", "", "Enroll from this photo instead of a camera frame")
	enrollCmd.Flags().StringVar(&enrollDir, "dir", "", "Enroll every photo in a directory")
	enrollCmd.MarkFlagsMutuallyExclusive("dir", "image")
	enrollCmd.MarkFlagsMutuallyExclusive("dir", "name")
	rootCmd.AddCommand(enrollCmd)
}

func runEnroll(cmd *cobra.Command) error {
	ctx := cmd.Context()

	eng := mustEngine(ctx, false)
	defer eng.Close()

	frame, err := grabFrame(ctx, enrollImage)
	if err != nil {
		utils.ShowError("failed to read frame", err, nil)
		return nil
	}

	var prompter enroll.Prompter = &enroll.LinePrompter{In: os.Stdin, Out: os.Stdout}
	if enrollName != "" {
		prompter = enroll.Static(enrollName)
	}
	wf := &enroll.Workflow{
		Faces:      eng,
		Gallery:    Gallery,
		Prompter:   prompter,
		CaptureDir: Cfg.Capture.Dir,
		Log:        Log,
	}

	res, err := wf.Enroll(ctx, frame)
	if err != nil {
		reportEnrollError(err)
		return nil
	}
	fmt.Printf("✅ Enrolled %s (%d known faces)\n", res.Name, Gallery.Len())
	if res.CropPath != "" {
		fmt.Printf("📸 Face saved to %s\n", res.CropPath)
	}
	return nil
}

func runEnrollDir(cmd *cobra.Command) error {
	ctx := cmd.Context()

	files, err := imageFiles(enrollDir)
	if err != nil {
		utils.ShowError("Failed to read photo directory", err, nil)
		return nil
	}
	if len(files) == 0 {
		fmt.Printf("No photos found in %s.\n", enrollDir)
		return nil
	}

	eng := mustEngine(ctx, false)
	defer eng.Close()

	bar := progressbar.NewOptions64(int64(len(files)),
		progressbar.OptionSetDescription("👤 Enrolling"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	enrolled := 0
	var failed []string
	for _, path := range files {
		if ctx.Err() != nil {
			break
		}
		bar.Add(1)

		img, err := capture.OpenImage(path)
		if err != nil {
			Log.Warn("skipping unreadable photo", "file", path, "error", err)
			failed = append(failed, filepath.Base(path))
			continue
		}
		wf := &enroll.Workflow{Faces: eng, Gallery: Gallery, Prompter: enroll.Static(enroll.NameFromFile(path)), Log: Log}
		if _, err := wf.Enroll(ctx, img); err != nil {
			if types.IsStorage(err) {
				bar.Finish()
				utils.ShowError("Failed to save the face gallery", err, nil)
				return nil
			}
			Log.Warn("enrollment failed", "file", path, "error", err)
			failed = append(failed, filepath.Base(path))
			continue
		}
		enrolled++
	}
	bar.Finish()

	fmt.Fprintf(os.Stderr, "\n🏁 Enrolled %d of %d photos.\n", enrolled, len(files))
	if len(failed) > 0 {
		fmt.Fprintf(os.Stderr, "⚠️  Skipped: %s\n", strings.Join(failed, ", "))
	}
	return nil
}

// imageFiles lists the photos in dir in name order.
func imageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg", ".gif":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// enrollNotice is the message shown for a failed enrollment.
func enrollNotice(err error) string {
	switch {
	case errors.Is(err, types.ErrNoFaceDetected):
		return "No face detected, nothing was enrolled"
	case errors.Is(err, types.ErrEnrollmentCancelled):
		return "Enrollment cancelled"
	case types.IsValidation(err):
		return "Invalid name, nothing was enrolled"
	case types.IsStorage(err):
		return "Failed to save the face gallery"
	default:
		return "Enrollment failed"
	}
}

func reportEnrollError(err error) {
	if errors.Is(err, types.ErrEnrollmentCancelled) {
		fmt.Println(enrollNotice(err) + ".")
		return
	}
	utils.ShowError(enrollNotice(err), err, nil)
}

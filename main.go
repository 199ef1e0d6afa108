package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	articlePromptPath string
	chartPromptPath   string
	schemaPromptPath  string
	settingsPath      string
	dryRun            bool
	debugMode         bool
)

func buildOverrides() *ConfigOverrides {
	overrides := &ConfigOverrides{}
	if articlePromptPath != "" {
		overrides.ArticlePromptPath = &articlePromptPath
	}
	if chartPromptPath != "" {
		overrides.ChartPromptPath = &chartPromptPath
	}
	if schemaPromptPath != "" {
		overrides.SchemaPromptPath = &schemaPromptPath
	}
	if settingsPath != "" {
		overrides.SettingsPath = &settingsPath
	}
	return overrides
}

func newPipeline() *Pipeline {
	cfg, err := LoadConfig(buildOverrides())
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	if dryRun {
		cfg.DryRun = true
	}
	if debugMode {
		SetDebugMode(true)
	}

	pipeline, err := NewPipeline(cfg)
	if err != nil {
		log.Fatalf("Failed to create pipeline: %v", err)
	}
	return pipeline
}

func exitOnFailures(results []ProcessingResult) {
	failed := 0
	for _, r := range results {
		if r.Status == StatusError {
			failed++
		}
	}
	if failed > 0 {
		log.Fatalf("%d of %d items failed", failed, len(results))
	}
}

var rootCmd = &cobra.Command{
	Use:   "blog-prompt",
	Short: "SEO article generation and WordPress publishing automation",
	Long:  `Parses research briefs, generates Japanese SEO blog articles via an OpenAI-compatible API, formats them as Gutenberg block markup and publishes them to WordPress.`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Full automation: parse briefs, generate and publish",
	Run: func(cmd *cobra.Command, args []string) {
		results, err := newPipeline().Run(context.Background())
		if err != nil {
			log.Fatalf("Processing failed: %v", err)
		}
		exitOnFailures(results)
	},
}

var parseCmd = &cobra.Command{
	Use:   "parse [brief-file...]",
	Short: "Parse research briefs and print the extracted structure",
	Run: func(cmd *cobra.Command, args []string) {
		pipeline := newPipeline()
		paths := args
		if len(paths) == 0 {
			var err error
			paths, err = ListBriefFiles(pipeline.cfg.Settings.InputDirectory)
			if err != nil {
				log.Fatalf("Listing briefs: %v", err)
			}
		}
		for _, path := range paths {
			brief, err := ParseResearchBrief(path)
			if err != nil {
				log.Fatalf("Parsing %s: %v", path, err)
			}
			brief.RawContent = "" // keep output readable
			out, _ := json.MarshalIndent(brief, "", "  ")
			fmt.Println(string(out))
		}
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate [brief-file...]",
	Short: "Generate articles from briefs without publishing",
	Run: func(cmd *cobra.Command, args []string) {
		pipeline := newPipeline()
		if err := pipeline.requireGenerator(); err != nil {
			log.Fatalf("%v", err)
		}
		paths := args
		if len(paths) == 0 {
			var err error
			paths, err = ListBriefFiles(pipeline.cfg.Settings.InputDirectory)
			if err != nil {
				log.Fatalf("Listing briefs: %v", err)
			}
		}
		ctx := context.Background()
		for _, path := range paths {
			brief, err := ParseResearchBrief(path)
			if err != nil {
				log.Fatalf("Parsing %s: %v", path, err)
			}
			article, err := pipeline.generator.Generate(ctx, brief)
			if err != nil {
				log.Fatalf("Generating from %s: %v", path, err)
			}
			if err := pipeline.SaveDraft(article); err != nil {
				log.Fatalf("Saving draft: %v", err)
			}
			log.Printf("✓ generated %s (%d chars, SEO score %d)", article.Slug, article.WordCount, article.SEOScore)
		}
	},
}

var publishCmd = &cobra.Command{
	Use:   "publish [content-file...]",
	Short: "Publish generated article files to WordPress",
	Run: func(cmd *cobra.Command, args []string) {
		results, err := newPipeline().PublishGenerated(context.Background(), args)
		if err != nil {
			log.Fatalf("Publishing failed: %v", err)
		}
		exitOnFailures(results)
	},
}

var uploadMdCmd = &cobra.Command{
	Use:   "upload-md <directory>",
	Short: "Publish local markdown drafts to WordPress",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		results, err := newPipeline().UploadMarkdown(context.Background(), args[0])
		if err != nil {
			log.Fatalf("Upload failed: %v", err)
		}
		exitOnFailures(results)
	},
}

var pullCmd = &cobra.Command{
	Use:   "pull <post-id> [output-file]",
	Short: "Fetch a published post and save it as markdown for revision",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		postID, err := strconv.Atoi(args[0])
		if err != nil {
			log.Fatalf("Invalid post id %q", args[0])
		}
		pipeline := newPipeline()
		title, markdown, err := pipeline.wp.PullPost(context.Background(), postID)
		if err != nil {
			log.Fatalf("Pull failed: %v", err)
		}

		output := fmt.Sprintf("# %s\n\n%s\n", title, markdown)
		if len(args) == 2 {
			if err := os.WriteFile(args[1], []byte(output), 0o644); err != nil {
				log.Fatalf("Writing %s: %v", args[1], err)
			}
			log.Printf("✓ saved post %d to %s", postID, args[1])
		} else {
			fmt.Print(output)
		}
	},
}

var testConnectionCmd = &cobra.Command{
	Use:   "test-connection",
	Short: "Verify the WordPress URL and credentials",
	Run: func(cmd *cobra.Command, args []string) {
		pipeline := newPipeline()
		if !pipeline.wp.TestConnection(context.Background()) {
			log.Fatal("WordPress connection test failed")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&articlePromptPath, "article-prompt", "", "Path to custom article prompt file")
	rootCmd.PersistentFlags().StringVar(&chartPromptPath, "chart-prompt", "", "Path to custom chart prompt file")
	rootCmd.PersistentFlags().StringVar(&schemaPromptPath, "schema-prompt", "", "Path to custom schema prompt file")
	rootCmd.PersistentFlags().StringVar(&settingsPath, "settings", "", "Path to settings.yaml")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "Generate but skip all WordPress writes")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(runCmd, parseCmd, generateCmd, publishCmd, uploadMdCmd, pullCmd, testConnectionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

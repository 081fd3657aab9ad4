// Tool to generate labelled synthetic accounts and benchmark a running
// fakeguard server against them.
package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/opensource-finance/fakeguard/internal/domain"
	"github.com/opensource-finance/fakeguard/internal/ingest"
)

func main() {
	// only try dotenv if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "error loading .env file: %v\n", err)
			os.Exit(1)
		}
	}

	app := &cli.App{
		Name:  "accountgen",
		Usage: "synthetic account generator and detection benchmark",
	}

	genFlags := []cli.Flag{
		&cli.IntFlag{
			Name:  "genuine",
			Usage: "number of genuine accounts",
			Value: 200,
		},
		&cli.IntFlag{
			Name:  "fake",
			Usage: "number of fake accounts",
			Value: 60,
		},
		&cli.Int64Flag{
			Name:  "seed",
			Usage: "random seed; 0 picks one from the clock",
		},
	}

	app.Commands = []*cli.Command{
		{
			Name:   "generate",
			Usage:  "write a labelled dataset as JSON or CSV",
			Action: runGenerate,
			Flags: append([]cli.Flag{
				&cli.StringFlag{
					Name:  "out",
					Usage: "output file; the extension picks the format",
					Value: "accounts.json",
				},
			}, genFlags...),
		},
		{
			Name:   "bench",
			Usage:  "upload a dataset, analyze it and report precision/recall",
			Action: runBench,
			Flags: append([]cli.Flag{
				&cli.StringFlag{
					Name:    "url",
					Usage:   "fakeguard base URL",
					Value:   "http://localhost:3000",
					EnvVars: []string{"FAKEGUARD_URL"},
				},
				&cli.StringFlag{
					Name:  "tenant",
					Usage: "tenant ID for requests",
					Value: "benchmark-test",
				},
				&cli.StringFlag{
					Name:  "input",
					Usage: "labelled dataset to upload; generated in memory when empty",
				},
				&cli.BoolFlag{
					Name:  "with-rules",
					Usage: "install the sample custom rules before analyzing",
				},
			}, genFlags...),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func generatorFromFlags(cctx *cli.Context) *Generator {
	seed := cctx.Int64("seed")
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return NewGenerator(seed, time.Now())
}

func encode(format string, records []domain.AccountRecord) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	if format == ingest.FormatCSV {
		err = WriteCSV(&buf, records)
	} else {
		err = WriteJSON(&buf, records)
	}
	return buf.Bytes(), err
}

func runGenerate(cctx *cli.Context) error {
	out := cctx.String("out")
	format, err := ingest.FormatFromFilename(out)
	if err != nil {
		return fmt.Errorf("%s: %w", out, err)
	}

	records := generatorFromFlags(cctx).Generate(cctx.Int("genuine"), cctx.Int("fake"))
	data, err := encode(format, records)
	if err != nil {
		return err
	}

	if err := os.WriteFile(out, data, 0o644); err != nil {
		return err
	}

	fmt.Printf("wrote %d accounts (%d genuine, %d fake) to %s\n", len(records), cctx.Int("genuine"), cctx.Int("fake"), out)
	return nil
}

func runBench(cctx *cli.Context) error {
	client := NewClient(cctx.String("url"), cctx.String("tenant"))

	fmt.Println("=============== FAKEGUARD BENCHMARK ===============")
	fmt.Printf("\nURL:     %s\n", client.BaseURL)
	fmt.Printf("Tenant:  %s\n", client.TenantID)

	if err := client.CheckHealth(); err != nil {
		return fmt.Errorf("fakeguard not reachable at %s: %w", client.BaseURL, err)
	}
	fmt.Println("fakeguard is healthy")

	var (
		records  []domain.AccountRecord
		data     []byte
		filename string
		err      error
	)

	if input := cctx.String("input"); input != "" {
		format, ferr := ingest.FormatFromFilename(input)
		if ferr != nil {
			return fmt.Errorf("%s: %w", input, ferr)
		}
		data, err = os.ReadFile(input)
		if err != nil {
			return err
		}
		records, err = ingest.Decode(bytes.NewReader(data), format)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", input, err)
		}
		filename = filepath.Base(input)
	} else {
		records = generatorFromFlags(cctx).Generate(cctx.Int("genuine"), cctx.Int("fake"))
		data, err = encode(ingest.FormatJSON, records)
		if err != nil {
			return err
		}
		filename = "accounts.json"
	}

	labels := Labels(records)
	fakes := 0
	for _, fake := range labels {
		if fake {
			fakes++
		}
	}
	fmt.Printf("Loaded %d accounts (%d fake)\n", len(labels), fakes)

	if cctx.Bool("with-rules") {
		n, err := client.InstallSampleRules()
		if err != nil {
			return err
		}
		fmt.Printf("Installed %d sample rules\n", n)
	}

	upload, err := client.Upload(filename, data)
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	fmt.Println(upload.Message)

	start := time.Now()
	result, err := client.Analyze()
	if err != nil {
		return fmt.Errorf("analyze failed: %w", err)
	}
	elapsed := time.Since(start)

	fmt.Printf("Flagged %d of %d (%s%%)\n",
		result.Summary.TotalFlagged, result.Summary.TotalProcessed, result.Summary.FlaggedPercentage)

	printResults(Evaluate(labels, result.FlaggedAccounts), elapsed)
	return nil
}

/*
Copyright 2025 The llm-d Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// stop-check replays text through a HuggingFace tokenizer and reports the
// generation step at which the stop-string rule would have fired.
//
// Usage:
//
//	stop-check --tokenizer /path/to/tokenizer.json --stops "stop,\n\n" "some text to check"
//
// With no text arguments, lines are read from stdin and checked one by
// one. The tokenizer.json file supplies both the encoder and the
// vocabulary the alignment table is precomputed from.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/daulet/tokenizers"
	"github.com/urfave/cli/v3"

	"github.com/llm-d/llm-d-stopping-criteria/pkg/stopping/stopstrings"
	"github.com/llm-d/llm-d-stopping-criteria/pkg/tokenization"
)

func main() {
	var (
		tokenizerPath string
		stops         string
		normalizer    string
	)

	app := &cli.Command{
		Name:      "stop-check",
		Usage:     "replay text through a tokenizer and report where a stop string fires",
		ArgsUsage: "[text ...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "tokenizer",
				Aliases:     []string{"t"},
				Usage:       "path to a HuggingFace tokenizer.json file (required)",
				Destination: &tokenizerPath,
			},
			&cli.StringFlag{
				Name:        "stops",
				Aliases:     []string{"s"},
				Usage:       "comma-separated stop strings (required)",
				Destination: &stops,
			},
			&cli.StringFlag{
				Name:        "normalizer",
				Usage:       "token normalizer: default, sentencepiece, wordpiece or identity",
				Destination: &normalizer,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if tokenizerPath == "" {
				return cli.Exit("error: --tokenizer is required", 2)
			}
			if stops == "" {
				return cli.Exit("error: --stops is required", 2)
			}
			return run(ctx, tokenizerPath, splitStops(stops), normalizer, cmd.Args().Slice())
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// splitStops parses the comma-separated stop list, unescaping \n and \t so
// newline stops can be passed on a command line.
func splitStops(arg string) []string {
	parts := strings.Split(arg, ",")
	for i, part := range parts {
		part = strings.ReplaceAll(part, `\n`, "\n")
		parts[i] = strings.ReplaceAll(part, `\t`, "\t")
	}
	return parts
}

func run(ctx context.Context, tokenizerPath string, stops []string, normalizer string, texts []string) error {
	tokenizer, err := tokenizers.FromFile(tokenizerPath)
	if err != nil {
		return fmt.Errorf("failed to load tokenizer %q: %w", tokenizerPath, err)
	}
	defer tokenizer.Close()

	vocab, err := tokenization.LoadVocabulary(tokenizerPath)
	if err != nil {
		return err
	}

	criteria, err := stopstrings.NewCriteria(&stopstrings.Config{Normalizer: normalizer}, vocab, stops)
	if err != nil {
		return err
	}

	if len(texts) > 0 {
		for _, text := range texts {
			if err := checkText(ctx, tokenizer, criteria, text); err != nil {
				return err
			}
		}
		return nil
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if err := checkText(ctx, tokenizer, criteria, scanner.Text()); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// checkText replays the text token by token, the way it would arrive from
// a generation loop, and prints the step at which the rule fires.
func checkText(ctx context.Context, tokenizer *tokenizers.Tokenizer, criteria *stopstrings.Criteria, text string) error {
	encoding := tokenizer.EncodeWithOptions(text, false)
	ids := encoding.IDs

	for end := 1; end <= len(ids); end++ {
		done, err := criteria.Evaluate(ctx, [][]uint32{ids[:end]}, nil)
		if err != nil {
			return err
		}

		if done[0] {
			prefix := tokenizer.Decode(ids[:end], true)
			fmt.Printf("STOP at token %d/%d: %q\n", end, len(ids), prefix)
			return nil
		}
	}

	fmt.Printf("no stop in %d tokens: %q\n", len(ids), text)
	return nil
}

package commands

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// JobIndexEnv is read when --job-index is not given.
const JobIndexEnv = "LSB_JOBINDEX"

var ErrJobIndexOutOfRange = errors.New("job index out of range")

type partitionFlags struct {
	partitions []string
	file       string
	jobIndex   int
}

func (f *partitionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.partitions, "partitions", nil, "Partition prefixes to process, e.g. 2001,2022_Q4")
	cmd.Flags().StringVar(&f.file, "partition-file", "", "File of whitespace-separated partition prefixes, used when --partitions is empty")
	cmd.Flags().IntVar(&f.jobIndex, "job-index", 0, "1-based index of the one token of --partition-file to process (default $"+JobIndexEnv+")")
}

// ResolvePartitions picks the partition tokens of a run. Explicit tokens win.
// Otherwise the tokens of file are used: all of them, or only the one at the
// 1-based job index, which falls back to the LSB_JOBINDEX variable.
func ResolvePartitions(explicit []string, file string, jobIndex int, getenv func(string) string) ([]string, error) {
	var tokens []string
	for _, p := range explicit {
		if p = strings.TrimSpace(p); p != "" {
			tokens = append(tokens, p)
		}
	}
	if len(tokens) > 0 || file == "" {
		return tokens, nil
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read partition file: %w", err)
	}
	tokens = strings.Fields(string(data))

	if jobIndex <= 0 {
		if n, err := strconv.Atoi(getenv(JobIndexEnv)); err == nil && n > 0 {
			jobIndex = n
		}
	}
	if jobIndex <= 0 {
		return tokens, nil
	}
	if jobIndex > len(tokens) {
		return nil, fmt.Errorf("%w: index %d, %d tokens in %s", ErrJobIndexOutOfRange, jobIndex, len(tokens), file)
	}
	return []string{tokens[jobIndex-1]}, nil
}

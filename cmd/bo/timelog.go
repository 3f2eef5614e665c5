package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/thalesfsp/bo"
)

// timeLog writes one "iteration,seconds" row per optimization step.
type timeLog struct {
	file   *os.File
	writer *csv.Writer
	err    error
}

func newTimeLog(path string) (*timeLog, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create time log: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write([]string{"iteration", "seconds"}); err != nil {
		f.Close()

		return nil, fmt.Errorf("failed to write time log header: %w", err)
	}

	return &timeLog{file: f, writer: w}, nil
}

// observer returns the step observer feeding the log. The first write error
// is kept and reported by Close.
func (l *timeLog) observer() bo.StepObserver {
	return func(iteration int, elapsed time.Duration) {
		if l.err != nil {
			return
		}

		l.err = l.writer.Write([]string{
			strconv.Itoa(iteration),
			strconv.FormatFloat(elapsed.Seconds(), 'f', 6, 64),
		})
	}
}

func (l *timeLog) Close() error {
	l.writer.Flush()

	if l.err == nil {
		l.err = l.writer.Error()
	}

	if err := l.file.Close(); l.err == nil {
		l.err = err
	}

	if l.err != nil {
		return fmt.Errorf("failed to write time log: %w", l.err)
	}

	return nil
}

package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/mattn/go-runewidth"

	"github.com/amultiwary/TaskApp/internal/models"
)

const (
	shortIDLen    = 8
	maxTitleWidth = 48
)

func shortID(id string) string {
	if len(id) <= shortIDLen {
		return id
	}
	return id[:shortIDLen]
}

func printTasks(w io.Writer, tasks []models.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, "No tasks")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tPRIORITY\tDUE\tTITLE")
	for _, t := range tasks {
		due := "-"
		if t.DueDate != nil {
			due = t.DueDate.String()
		}
		// タイトルは最後の列なので全角文字を含んでも桁はずれない
		title := runewidth.Truncate(t.Title, maxTitleWidth, "…")
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", shortID(t.ID), t.Status, t.Priority, due, title)
	}
	tw.Flush()
}

func printStats(w io.Writer, s models.TaskStats) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Total\t%d\n", s.Total)
	fmt.Fprintf(tw, "Completed\t%d\n", s.Completed)
	fmt.Fprintf(tw, "Pending\t%d\n", s.Pending)
	tw.Flush()
}

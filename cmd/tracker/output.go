package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/ersonp/book-character-tracker/internal/domain/entities"
)

var (
	bold    = color.New(color.Bold).SprintFunc()
	success = color.New(color.FgGreen).SprintFunc()
	warning = color.New(color.FgYellow).SprintFunc()
	faint   = color.New(color.Faint).SprintFunc()
	cyan    = color.New(color.FgCyan).SprintFunc()
)

// characterNames maps character IDs to names for printing edges.
func characterNames(chars []*entities.Character) map[string]string {
	names := make(map[string]string, len(chars))
	for _, c := range chars {
		names[c.ID] = c.Name
	}
	return names
}

func printCharacterLine(c *entities.Character) {
	fmt.Printf("%s %s\n", bold(c.Name), faint(c.ID))
	fmt.Printf("  %s, %s, chapters %d-%d, %d mentions\n",
		c.Relevance, c.Status, c.FirstAppearance, c.LastMentioned, c.MentionCount)
}

func printCharacter(c *entities.Character, names map[string]string) {
	fmt.Printf("%s %s\n", bold(c.Name), faint(c.ID))
	if len(c.Aliases) > 0 {
		fmt.Printf("  Also known as: %s\n", strings.Join(c.Aliases, ", "))
	}
	printField("Occupation", c.Occupation)
	printField("Age", c.Age)
	printField("Location", c.Location)
	fmt.Printf("  Status: %s\n", c.Status)
	fmt.Printf("  Relevance: %s\n", c.Relevance)
	printField("Description", c.BriefDescription)
	fmt.Printf("  First appearance: chapter %d, last mentioned: chapter %d (%d mentions)\n",
		c.FirstAppearance, c.LastMentioned, c.MentionCount)

	if len(c.Relationships) > 0 {
		fmt.Println("  Relationships:")
		for _, r := range c.Relationships {
			target := names[r.TargetCharacterID]
			if target == "" {
				target = r.TargetCharacterID
			}
			fmt.Printf("    %s %s %s", cyan("--["+string(r.Type)+"]-->"), target, faint(fmt.Sprintf("(ch. %d)", r.EstablishedInChapter)))
			if r.Description != "" {
				fmt.Printf(" %s", r.Description)
			}
			fmt.Println()
		}
	}

	if len(c.ChapterHistory) > 0 {
		fmt.Println("  History:")
		for _, h := range c.ChapterHistory {
			fmt.Printf("    Chapter %d: %s\n", h.Chapter, strings.Join(h.Updates, "; "))
		}
	}
}

func printField(label, value string) {
	if entities.Known(value) {
		fmt.Printf("  %s: %s\n", label, value)
	}
}

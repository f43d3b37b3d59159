package models

import (
	"strings"
	"time"
)

// VerseDelimiter separates the verse text from its reference in verse_text
const VerseDelimiter = "|"

// Verse is an immutable scripture verse
type Verse struct {
	ID           string    `json:"id" db:"id"`
	SerialNumber int       `json:"serial_number" db:"serial_number"`
	Text         string    `json:"verse_text" db:"verse_text"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// VerseHistory records that a verse was shown to a user in the current cycle
type VerseHistory struct {
	ID      string    `json:"id" db:"id"`
	UserID  string    `json:"user_id" db:"user_id"`
	VerseID string    `json:"verse_id" db:"verse_id"`
	ShownAt time.Time `json:"shown_at" db:"shown_at"`
}

// DailyVerse is the payload returned by get_daily_verse
type DailyVerse struct {
	VerseText  string `json:"verse_text"`
	Text       string `json:"text"`
	Reference  string `json:"reference,omitempty"`
	CycleReset bool   `json:"cycle_reset"`
}

// SplitVerse splits "<text> | <reference>" on the first delimiter.
// Text without a delimiter is returned whole with an empty reference.
func SplitVerse(verseText string) (text, reference string) {
	before, after, found := strings.Cut(verseText, VerseDelimiter)
	if !found {
		return strings.TrimSpace(verseText), ""
	}
	return strings.TrimSpace(before), strings.TrimSpace(after)
}

// NewDailyVerse builds the client payload for a selected verse
func NewDailyVerse(v *Verse, cycleReset bool) *DailyVerse {
	text, ref := SplitVerse(v.Text)
	return &DailyVerse{
		VerseText:  v.Text,
		Text:       text,
		Reference:  ref,
		CycleReset: cycleReset,
	}
}

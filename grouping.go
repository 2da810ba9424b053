package chatsync

import "time"

// RowKind discriminates thread rows.
type RowKind string

const (
	RowDateSeparator RowKind = "date"
	RowMessage       RowKind = "message"
)

// ThreadRow is one renderable row of an open thread.
type ThreadRow struct {
	Kind RowKind

	// Date is set for separator rows, truncated to midnight in the
	// rendering location.
	Date time.Time

	// Message and FirstOfGroup are set for message rows. FirstOfGroup
	// marks the row that starts a run of consecutive messages from the
	// same sender within the same calendar day; renderers show the
	// avatar and sender name on these rows only.
	Message      Message
	FirstOfGroup bool
}

// BuildThreadRows projects a chronological message list into rows. A date
// separator is inserted only between two adjacent messages that fall on
// different calendar days; the list never starts with a separator. A nil
// location defaults to time.Local.
func BuildThreadRows(msgs []Message, loc *time.Location) []ThreadRow {
	if loc == nil {
		loc = time.Local
	}
	rows := make([]ThreadRow, 0, len(msgs))
	for i, m := range msgs {
		day := dayOf(m.CreatedAt, loc)
		newDay := i > 0 && !day.Equal(dayOf(msgs[i-1].CreatedAt, loc))
		if newDay {
			rows = append(rows, ThreadRow{Kind: RowDateSeparator, Date: day})
		}
		first := i == 0 || newDay || msgs[i-1].SenderID != m.SenderID
		rows = append(rows, ThreadRow{Kind: RowMessage, Message: m, FirstOfGroup: first})
	}
	return rows
}

func dayOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

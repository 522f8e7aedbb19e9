package commands

import (
	"fmt"
	"strings"

	"github.com/klytics/rosterbot/internal/roster"
)

// placeholder marks an intentionally blank phone/trip/hotel/room cell.
const placeholder = "*"

// Fields names the spreadsheet headers the record template reads.
type Fields struct {
	Name  string `mapstructure:"name"`
	Phone string `mapstructure:"phone"`
	Role  string `mapstructure:"role"`
	Trip  string `mapstructure:"trip"`
	Hotel string `mapstructure:"hotel"`
	Room  string `mapstructure:"room"`
}

// DefaultFields are the headers used by the attendee spreadsheet. The hotel
// header is spelled الفدق in the source sheet.
func DefaultFields() Fields {
	return Fields{
		Name:  "الاسم و اللقب",
		Phone: "رقم الهاتف",
		Role:  "الصفة",
		Trip:  "الرحلة",
		Hotel: "الفدق",
		Room:  "الغرفة",
	}
}

// WithDefaults fills empty header names from DefaultFields.
func (f Fields) WithDefaults() Fields {
	d := DefaultFields()
	if f.Name == "" {
		f.Name = d.Name
	}
	if f.Phone == "" {
		f.Phone = d.Phone
	}
	if f.Role == "" {
		f.Role = d.Role
	}
	if f.Trip == "" {
		f.Trip = d.Trip
	}
	if f.Hotel == "" {
		f.Hotel = d.Hotel
	}
	if f.Room == "" {
		f.Room = d.Room
	}
	return f
}

// FormatRecord renders one attendee card.
func (f Fields) FormatRecord(r roster.Record) string {
	var sb strings.Builder

	name := r.Value(f.Name)
	if name == "" {
		name = "N/A"
	}
	fmt.Fprintf(&sb, "*👤 %s*\n", name)

	if v := r.Value(f.Phone); shown(v) {
		fmt.Fprintf(&sb, "📱 الهاتف: %s\n", v)
	}
	if v := r.Value(f.Role); v != "" {
		fmt.Fprintf(&sb, "🏷️ الصفة: %s\n", v)
	}
	if v := r.Value(f.Trip); shown(v) {
		fmt.Fprintf(&sb, "✈️ الرحلة: %s\n", v)
	}
	if v := r.Value(f.Hotel); shown(v) {
		fmt.Fprintf(&sb, "🏨 الفندق: %s\n", v)
	}
	if v := r.Value(f.Room); shown(v) {
		fmt.Fprintf(&sb, "🚪 الغرفة: %s\n", v)
	}
	return sb.String()
}

// FormatList renders records as a numbered list under title.
func (f Fields) FormatList(title string, records []roster.Record) string {
	var sb strings.Builder
	sb.WriteString(title)
	sb.WriteString("\n\n")
	for i, r := range records {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, f.FormatRecord(r))
	}
	return sb.String()
}

func shown(v string) bool {
	return v != "" && v != placeholder
}

// FormatStats renders the !stats reply.
func FormatStats(st roster.Stats) string {
	var sb strings.Builder
	sb.WriteString("*📊 إحصائيات البيانات:*\n\n")
	fmt.Fprintf(&sb, "• عدد السجلات: %d\n", st.Records)
	fmt.Fprintf(&sb, "• عدد الأعمدة: %d\n", st.Columns)
	if len(st.Distinct) > 0 {
		sb.WriteString("\n*القيم المختلفة في كل عمود:*\n")
		for _, d := range st.Distinct {
			fmt.Fprintf(&sb, "• %s: %d\n", d.Column, d.Count)
		}
	}
	return sb.String()
}

func formatColumns(cols []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*📑 الأعمدة المتاحة (%d):*\n\n", len(cols))
	for i, c := range cols {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, c)
	}
	return sb.String()
}

// Package commands turns one line of chat text into one reply, backed by the
// attendee roster.
package commands

import (
	"fmt"
	"strings"

	"github.com/klytics/rosterbot/internal/roster"
)

// Command names recognised by the dispatcher. Matching is case-insensitive.
const (
	CmdList    = "!liste"
	CmdHelp    = "!help"
	CmdStats   = "!stats"
	CmdColumns = "!columns"
	CmdReload  = "!reload"
	CmdMyID    = "!myid"
	CmdGroupID = "!groupid"

	// DefaultConfirmCommand confirms a pending dataset replacement.
	DefaultConfirmCommand = "!loadnewdata"
)

// DefaultSearchPrefixes are the prefixes that start a full-text search.
var DefaultSearchPrefixes = []string{"!بحث عن", "!search"}

// Reply texts.
const (
	MsgNoData       = "لم يتم العثور على بيانات."
	MsgSearchUsage  = "الرجاء إدخال كلمة للبحث. مثال: !بحث عن وليد"
	MsgUnknown      = "الأمر غير معروف. الرجاء كتابة !help لعرض الأوامر المتاحة."
	MsgNotGroup     = "Cette commande ne fonctionne que dans les groupes"
	MsgReloadFailed = "❌ فشل إعادة تحميل البيانات. تحقق من الملف وحاول مرة أخرى."
	msgNoResultsFmt = "لم يتم العثور على نتائج لـ \"%s\""
	msgResultsFmt   = "*🔍 تم العثور على %d نتيجة لـ \"%s\":*"
	msgListFmt      = "*📋 قائمة بجميع %d المستخدمين:*"
	msgReloadedFmt  = "✅ تم إعادة تحميل البيانات: %d سجل."
	msgMyIDFmt      = "Votre ID: %s"
	msgGroupIDFmt   = "ID du groupe: %s"
)

// Store is the part of the roster the dispatcher reads.
type Store interface {
	All() []roster.Record
	Columns() []string
	Search(query string) []roster.Record
	Stats() roster.Stats
	Reload() error
	Len() int
}

// Meta carries the per-message sender and recipient identifiers.
type Meta struct {
	From   string
	To     string
	FromMe bool
}

// Options configures a Dispatcher.
type Options struct {
	SearchPrefixes []string
	Fields         Fields
	// ConfirmCommand is only advertised in the help text; the session
	// controller handles it before text reaches the dispatcher.
	ConfirmCommand string
}

// Dispatcher maps command text to roster queries and formats the results.
type Dispatcher struct {
	store    Store
	prefixes []string
	fields   Fields
	confirm  string
}

// New creates a Dispatcher over store.
func New(store Store, opts Options) *Dispatcher {
	prefixes := opts.SearchPrefixes
	if len(prefixes) == 0 {
		prefixes = DefaultSearchPrefixes
	}
	lowered := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			lowered = append(lowered, p)
		}
	}
	confirm := opts.ConfirmCommand
	if confirm == "" {
		confirm = DefaultConfirmCommand
	}
	return &Dispatcher{
		store:    store,
		prefixes: lowered,
		fields:   opts.Fields.WithDefaults(),
		confirm:  confirm,
	}
}

// Fields returns the record template in use.
func (d *Dispatcher) Fields() Fields { return d.fields }

// Handle returns the reply for text. The returned error is only non-nil when
// a store operation failed; the reply is still suitable to send.
func (d *Dispatcher) Handle(text string, meta Meta) (string, error) {
	cmd := strings.ToLower(strings.TrimSpace(text))

	for _, p := range d.prefixes {
		if strings.HasPrefix(cmd, p) {
			return d.search(strings.TrimSpace(cmd[len(p):])), nil
		}
	}

	switch cmd {
	case CmdList:
		return d.list(), nil
	case CmdHelp:
		return d.help(), nil
	case CmdStats:
		return FormatStats(d.store.Stats()), nil
	case CmdColumns:
		cols := d.store.Columns()
		if len(cols) == 0 {
			return MsgNoData, nil
		}
		return formatColumns(cols), nil
	case CmdReload:
		if err := d.store.Reload(); err != nil {
			return MsgReloadFailed, fmt.Errorf("reload: %w", err)
		}
		return fmt.Sprintf(msgReloadedFmt, d.store.Len()), nil
	case CmdMyID:
		return fmt.Sprintf(msgMyIDFmt, meta.From), nil
	case CmdGroupID:
		if meta.FromMe {
			return fmt.Sprintf(msgGroupIDFmt, meta.To), nil
		}
		return MsgNotGroup, nil
	default:
		return MsgUnknown, nil
	}
}

func (d *Dispatcher) search(query string) string {
	if query == "" {
		return MsgSearchUsage
	}
	results := d.store.Search(query)
	if len(results) == 0 {
		return fmt.Sprintf(msgNoResultsFmt, query)
	}
	return d.fields.FormatList(fmt.Sprintf(msgResultsFmt, len(results), query), results)
}

func (d *Dispatcher) list() string {
	all := d.store.All()
	if len(all) == 0 {
		return MsgNoData
	}
	return d.fields.FormatList(fmt.Sprintf(msgListFmt, len(all)), all)
}

func (d *Dispatcher) help() string {
	search := DefaultSearchPrefixes[0]
	if len(d.prefixes) > 0 {
		search = d.prefixes[0]
	}

	var sb strings.Builder
	sb.WriteString("*🤖 الأوامر المتاحة:*\n\n")
	fmt.Fprintf(&sb, "• %s [كلمة البحث] - للبحث في جميع الأعمدة\n\n", search)
	sb.WriteString("*أمثلة للبحث:*\n")
	for _, ex := range []struct{ label, term string }{
		{"بالاسم", "وليد"},
		{"بالصفة", "مرشد"},
		{"بالرحلة", "SV10"},
		{"بالفندق", "منارات الغزّة"},
		{"بالغرفة", "1952"},
		{"بالهاتف", "966561459339"},
	} {
		fmt.Fprintf(&sb, "• %s: %s %s\n", ex.label, search, ex.term)
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "• %s - لعرض جميع المستخدمين\n", CmdList)
	fmt.Fprintf(&sb, "• %s - لعرض إحصائيات البيانات\n", CmdStats)
	fmt.Fprintf(&sb, "• %s - لعرض أسماء الأعمدة\n", CmdColumns)
	fmt.Fprintf(&sb, "• %s - لإعادة تحميل الملف\n", CmdReload)
	fmt.Fprintf(&sb, "• %s - لعرض معرفك\n", CmdMyID)
	fmt.Fprintf(&sb, "• %s - لعرض معرف المجموعة\n", CmdGroupID)
	fmt.Fprintf(&sb, "• %s - لتأكيد استبدال البيانات بعد إرسال الملف\n", d.confirm)
	fmt.Fprintf(&sb, "• %s - لعرض هذه الرسالة", CmdHelp)
	return sb.String()
}

package incident

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/pyama86/dlpwatch/domain/entity"
	"golang.org/x/text/language"
)

// 解析できないタイムスタンプの表示
const InvalidDateLabel = "Invalid Date"

var (
	ruMonths = [...]string{"января", "февраля", "марта", "апреля", "мая", "июня",
		"июля", "августа", "сентября", "октября", "ноября", "декабря"}
	deMonths = [...]string{"Januar", "Februar", "März", "April", "Mai", "Juni",
		"Juli", "August", "September", "Oktober", "November", "Dezember"}
	frMonths = [...]string{"janvier", "février", "mars", "avril", "mai", "juin",
		"juillet", "août", "septembre", "octobre", "novembre", "décembre"}
)

type longFormat func(t time.Time) string

var supportedLocales = []language.Tag{
	language.Und, // ISO
	language.English,
	language.Russian,
	language.German,
	language.French,
	language.Japanese,
}

var longFormats = []longFormat{
	func(t time.Time) string { return t.Format("2006-01-02 15:04:05") },
	func(t time.Time) string { return t.Format("January 2, 2006 at 3:04:05 PM") },
	func(t time.Time) string {
		return fmt.Sprintf("%d %s %d г. в %s", t.Day(), ruMonths[t.Month()-1], t.Year(), t.Format("15:04:05"))
	},
	func(t time.Time) string {
		return fmt.Sprintf("%d. %s %d um %s", t.Day(), deMonths[t.Month()-1], t.Year(), t.Format("15:04:05"))
	},
	func(t time.Time) string {
		return fmt.Sprintf("%d %s %d à %s", t.Day(), frMonths[t.Month()-1], t.Year(), t.Format("15:04:05"))
	},
	func(t time.Time) string { return t.Format("2006年1月2日 15:04:05") },
}

var localeMatcher = language.NewMatcher(supportedLocales)

// TimeFormatter はロケールごとの長い形式で日時を表示する
type TimeFormatter struct {
	format longFormat
	loc    *time.Location
}

// 一番近い対応ロケールを選ぶ。不明なタイムゾーンは UTC
func NewTimeFormatter(locale, timezone string) *TimeFormatter {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}
	idx := 0
	if tag, err := language.Parse(locale); err == nil {
		_, i, conf := localeMatcher.Match(tag)
		if conf != language.No {
			idx = i
		}
	}
	return &TimeFormatter{format: longFormats[idx], loc: loc}
}

func (f *TimeFormatter) Format(timestamp string) string {
	t, ok := entity.ParseTimestamp(timestamp)
	if !ok {
		return InvalidDateLabel
	}
	return f.format(t.In(f.loc))
}

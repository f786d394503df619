package incident

import (
	"net/url"
	"strconv"
	"strings"
)

// Linker はインシデント1件分の Kibana Discover へのリンクを作る
type Linker struct {
	baseURL string
	field   string
}

func NewLinker(baseURL, field string) *Linker {
	if field == "" {
		field = "incident_id"
	}
	return &Linker{baseURL: strings.TrimRight(baseURL, "/"), field: field}
}

// InvestigateURL は KQL の field:"id" で絞り込んだ Discover のURLを返す。
// base URL が未設定なら空文字
func (l *Linker) InvestigateURL(id string) string {
	if l == nil || l.baseURL == "" {
		return ""
	}
	query := l.field + ":" + strconv.Quote(id)
	state := "(query:(language:kuery,query:" + risonString(query) + "))"
	return l.baseURL + "/app/discover#/?_a=" + url.QueryEscape(state)
}

// rison の文字列リテラル。' と ! は ! でエスケープする
func risonString(s string) string {
	r := strings.NewReplacer("!", "!!", "'", "!'")
	return "'" + r.Replace(s) + "'"
}

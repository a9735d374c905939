package models

// Issue は GitHub Issue のうちブリッジが参照する項目
type Issue struct {
	Number  int
	Title   string
	State   string // "open" / "closed"
	HTMLURL string
	Labels  []string
}

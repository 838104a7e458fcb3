package models

// FeedEnvelope is the remote history page. Entries are newest first.
type FeedEnvelope struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		List []FeedEntry `json:"list"`
	} `json:"data"`
}

// FeedEntry is one finished round as reported by the feed.
type FeedEntry struct {
	IssueNumber string `json:"issueNumber"`
	Number      string `json:"number"`
}

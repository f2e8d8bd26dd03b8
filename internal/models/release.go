package models

// Release is a candidate source returned by the resolver, one torrent that
// can be handed to a debrid provider
type Release struct {
	Title      string
	InfoHash   string
	FileIndex  int
	Size       int64
	Seeders    int
	Tracker    string
	Quality    Quality
	Similarity float64
	Magnet     string
}

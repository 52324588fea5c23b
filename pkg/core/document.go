package core

// Collection is a remote container of documents.
type Collection struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DocumentRef identifies a remote document. NewPages is the processing
// marker: the number of pages not yet processed, zero when absent.
type DocumentRef struct {
	ID           string `json:"id"`
	CollectionID string `json:"collection_id"`
	Title        string `json:"title"`
	Pages        int    `json:"pages"`
	NewPages     int    `json:"new_pages"`
}

// Eligible reports whether the document still has unprocessed content.
func (d DocumentRef) Eligible() bool {
	return d.NewPages > 0
}

// UploadBatch is one document to create remotely from local image files.
type UploadBatch struct {
	Title string   `json:"title"`
	Files []string `json:"files"`
}

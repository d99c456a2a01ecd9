package metadata

// Tag is the structure of a repository resource tag
type Tag struct {
	Key   *string `json:"key"`
	Value *string `json:"value"`
}

package hostfunc

// Wire shapes for the built-in host functions. Sandboxed code sends these
// as JSON objects; they are documented here rather than used for decoding
// because arguments arrive as generic maps.

// KV store types

type KVGetRequest struct {
	Key     string `json:"key"`
	Default string `json:"default,omitempty"`
}

type KVSetRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type KVDeleteRequest struct {
	Key string `json:"key"`
}

// HTTP types

type HTTPGetRequest struct {
	URL string `json:"url"`
}

type HTTPResponse struct {
	Status  int               `json:"status"`
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Filesystem types

type FSReadRequest struct {
	Path string `json:"path"`
}

type FSWriteRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type FSListRequest struct {
	Path string `json:"path"`
}

type FSEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size"`
}

type FSStatResponse struct {
	Name    string `json:"name"`
	Size    int64  `json:"size"`
	IsDir   bool   `json:"is_dir"`
	ModTime int64  `json:"mod_time"`
}

package util

const (
	StorageLocal = "local"
	StorageMinio = "minio"
	StorageOSS   = "oss"
)

const (
	TranscriptionOpenAI = "openai"
	TranscriptionGCP    = "gcp"
)

var (
	AllowedImageTypes = []string{"image/png", "image/jpeg", "image/webp"}
	// webm/ogg recordings are sniffed as video/webm or application/ogg
	AllowedAudioTypes = []string{"audio/", "video/webm", "application/ogg"}
)

package api

// API limits.
const (
	// MaxPhotos is the most photos one post may carry.
	MaxPhotos = 5
	// MaxPhotoSize is the maximum allowed size of one photo (10 MB).
	MaxPhotoSize = 10 << 20
	// MaxCreatePostSize bounds a whole create-post request.
	MaxCreatePostSize = MaxPhotos*MaxPhotoSize + 1<<20

	multipartMemory = 32 << 20
)

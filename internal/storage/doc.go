// Package storage keeps uploaded recordings and voice samples on local disk
// and addresses them with stable URIs.
//
// Blobs live at {blob_dir}/{container}/{name}; uploads use the name
// {meeting_id}/{safe_filename}. A blob URI is {public_base_url}/{container}/{name}
// and is served by the HTTP API under /blobs. DownloadBlob accepts only URIs
// inside the configured container unless storage.allow_remote permits plain
// http(s) fetches.
package storage

// Package assetx is imported from the module root:
//
//	import "github.com/gostratum/assetx"
//
// The root package holds the domain: Asset records, the Backend contract,
// the extension allow-list, path resolution, the replace protocol and the
// Service façade. Concrete backends live under adapters/ (local, s3, sftp)
// and are selected once at startup by adapters.NewBackend from
// Config.Backend. Reference registries live under registry/ and the HTTP
// boundary under httpapi/.
//
// Replace parks the current object under "<stored>.temp", uploads the new
// content under the stored name, and deletes the temp object. If the upload
// fails the temp object is renamed back, so the prior content stays
// retrievable under the stored name. Replace, Delete and Recover for the
// same asset id never overlap.
package assetx

// Package security provides validation, sanitization, and limits for remote
// ids, titles, paths and stored error text.
//
// This package includes:
//   - Validation of remote ids and document titles
//   - Error message sanitization and credential redaction before text is
//     stored or reported
//   - Safe joining of archive entries and file names below a directory
//   - Limits on concurrency, archive size and issue titles
//
// Most users should import the root package
// github.com/BastianD2000/Automated-Workflow-for-Digital-Editions which
// re-exports the common limits.
package security

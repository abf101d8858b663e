// Package core holds the domain logic for TB/HIV co-infection patient
// records, independent of the HTTP layer and the database driver.
//
// # Bulk Import
//
// [Importer.Import] turns one uploaded file into patients:
//
//  1. [ParseRecords] reads the whole CSV or spreadsheet into [RawRow] values.
//     Unknown extensions fail with [ErrUnsupportedFormat] and unreadable
//     content with [*ParseError]; either aborts the batch.
//  2. [MapRow] normalizes snake_case or camelCase columns into a
//     [CandidatePatient], filling clinical status defaults.
//  3. A [BatchAllocator] assigns the next TB-<year>-<seq> identifier.
//  4. [ValidatePatient] checks the candidate, stopping at the first problem.
//  5. The repository persists the record.
//
// Any failure in steps 2-5 is recorded as an [ImportRowError] with the
// 1-based row number and the raw cells, and the loop moves on. One audit
// event summarizes the batch.
//
// # Service
//
// [Service] wires the importer with patient, clinical, data quality,
// dashboard, export and FHIR operations over a [Store]. Every mutation
// writes an audit entry carrying the acting user, IP address and user agent
// taken from the context.
//
// # Error Handling
//
// Technical errors are mapped to coded user messages by [MapError]:
//
//   - DB001-DB008: database errors (duplicates, constraints, connections)
//   - VAL001-VAL006: validation errors (dates, required fields, vocabularies)
//   - FILE001-FILE006: file errors (size, format, encoding)
//   - IMP001-IMP004: import errors (busy, cancelled, timeout)
//   - AUTH001-AUTH002: authentication errors
//   - RATE001: rate limiting
//   - ERR000: anything else
package core

// Package shared holds helpers used by more than one City Pulse package.
//
// The testutil subpackage provides:
//
//   - BufferedSlogHandler for asserting on structured log output
//   - sample mobility CSV data and multipart upload builders
//
// Example usage:
//
//	func TestUpload(t *testing.T) {
//	    logger, logs := testutil.NewTestLogger(t)
//	    body, contentType := testutil.MultipartCSV(t, "file", "city.csv", testutil.CityCSV)
//	    ...
//	    assert.True(t, logs.ContainsMessage("insight report generated"))
//	}
//
// Nothing here is imported by production code.
package shared

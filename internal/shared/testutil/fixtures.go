package testutil

import (
	"bytes"
	"mime/multipart"
	"testing"
)

// CityCSV is a small mobility dataset touching every analysis
const CityCSV = `datetime,area,traffic,pollution,rain,transport_mode
2024-03-15 07:00,Downtown,120,55,0,bus
2024-03-15 08:00,Harbor,150,60,0.5,car
2024-03-15 08:30, Downtown ,,58,1.2,bike
2024-03-15 17:30,Airport,200,NA,2.0,car
2024-03-15 18:00,Harbor,90,40,0,
2024-03-16 07:15,Suburbs,60,30,0,bus
`

// TrafficOnlyCSV lacks every optional column
const TrafficOnlyCSV = "traffic\n10\n20\n30\n"

// MultipartCSV builds a multipart/form-data body holding one file field.
// It returns the body and the Content-Type header to send with it.
func MultipartCSV(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

package reporting

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// JUnit XML schema types

// JUnitTestSuites is the top-level container.
type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	Name       string           `xml:"name,attr,omitempty"`
	Tests      int              `xml:"tests,attr"`
	Failures   int              `xml:"failures,attr"`
	Errors     int              `xml:"errors,attr"`
	Time       float64          `xml:"time,attr"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

// JUnitTestSuite maps to one model.
type JUnitTestSuite struct {
	XMLName    xml.Name        `xml:"testsuite"`
	Name       string          `xml:"name,attr"`
	Tests      int             `xml:"tests,attr"`
	Failures   int             `xml:"failures,attr"`
	Errors     int             `xml:"errors,attr"`
	Time       float64         `xml:"time,attr"`
	Timestamp  string          `xml:"timestamp,attr,omitempty"`
	Properties []JUnitProperty `xml:"properties>property,omitempty"`
	TestCases  []JUnitTestCase `xml:"testcase"`
}

// JUnitTestCase maps to one question asked of the suite's model.
type JUnitTestCase struct {
	XMLName   xml.Name      `xml:"testcase"`
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Failure   *JUnitFailure `xml:"failure,omitempty"`
	Error     *JUnitError   `xml:"error,omitempty"`
}

// JUnitFailure is a wrong answer.
type JUnitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:",chardata"`
}

// JUnitError is an answer capability that failed after retries.
type JUnitError struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
}

// JUnitProperty is a key-value metadata entry.
type JUnitProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// ConvertToJUnit builds one testsuite per model with one testcase per
// question. A wrong answer is a failure; a failed answer call is an error.
func ConvertToJUnit(r *Report) *JUnitTestSuites {
	out := &JUnitTestSuites{
		Name: r.Name,
		Time: r.Duration.Seconds(),
	}

	var ts string
	if !r.Timestamp.IsZero() {
		ts = r.Timestamp.Format(time.RFC3339)
	}

	for _, m := range r.Result.Models {
		suite := JUnitTestSuite{
			Name:      m.Name,
			Timestamp: ts,
			Properties: []JUnitProperty{
				{Name: "model_id", Value: strconv.FormatInt(m.ID, 10)},
				{Name: "accuracy", Value: fmt.Sprintf("%.4f", m.Accuracy)},
			},
		}
		for _, qr := range r.Result.Questions {
			tc := JUnitTestCase{
				Name:      r.questionLabel(qr.ID),
				Classname: classname(r, qr.ID, m.Name),
			}
			if msg, ok := qr.Errors[m.ID]; ok {
				tc.Error = &JUnitError{Message: msg, Type: "AnswerError"}
				suite.Errors++
			} else if ans := qr.Answers[m.ID]; ans != qr.Correct {
				tc.Failure = &JUnitFailure{
					Message: fmt.Sprintf("answered %q, expected %q", ans, qr.Correct),
					Type:    "WrongAnswer",
				}
				suite.Failures++
			}
			suite.TestCases = append(suite.TestCases, tc)
		}
		suite.Tests = len(suite.TestCases)

		out.Tests += suite.Tests
		out.Failures += suite.Failures
		out.Errors += suite.Errors
		out.TestSuites = append(out.TestSuites, suite)
	}
	return out
}

// classname groups testcases by knowledge unit when it is known.
func classname(r *Report, id int64, model string) string {
	if q, ok := r.question(id); ok && q.KnowledgeUnit != "" {
		return model + "." + q.KnowledgeUnit
	}
	return model
}

// WriteJUnit writes r as JUnit XML.
func WriteJUnit(w io.Writer, r *Report) error {
	data, err := xml.MarshalIndent(ConvertToJUnit(r), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JUnit XML: %w", err)
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}

// WriteJUnitXML writes JUnit XML to the specified file path.
func WriteJUnitXML(r *Report, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteJUnit(f, r); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return f.Close()
}

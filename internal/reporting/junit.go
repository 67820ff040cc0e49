package reporting

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spboyer/dea/internal/models"
)

// JUnit XML schema types. Each DMU is a test case: efficient and
// inefficient DMUs pass, skipped DMUs are reported as errors so CI systems
// surface them.

// JUnitTestSuites is the top-level container.
type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	Tests      int              `xml:"tests,attr"`
	Failures   int              `xml:"failures,attr"`
	Errors     int              `xml:"errors,attr"`
	Time       float64          `xml:"time,attr"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

// JUnitTestSuite maps to one batch evaluation.
type JUnitTestSuite struct {
	XMLName    xml.Name        `xml:"testsuite"`
	Name       string          `xml:"name,attr"`
	Tests      int             `xml:"tests,attr"`
	Failures   int             `xml:"failures,attr"`
	Errors     int             `xml:"errors,attr"`
	Time       float64         `xml:"time,attr"`
	Timestamp  string          `xml:"timestamp,attr"`
	Properties []JUnitProperty `xml:"properties>property,omitempty"`
	TestCases  []JUnitTestCase `xml:"testcase"`
}

// JUnitTestCase maps to one DMU.
type JUnitTestCase struct {
	XMLName   xml.Name    `xml:"testcase"`
	Name      string      `xml:"name,attr"`
	Classname string      `xml:"classname,attr"`
	SystemOut string      `xml:"system-out,omitempty"`
	Error     *JUnitError `xml:"error,omitempty"`
}

// JUnitError represents a DMU whose LP had no optimal solution.
type JUnitError struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
}

// JUnitProperty is a key-value metadata entry.
type JUnitProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// ConvertToJUnit converts an Outcome to JUnit XML types. Test cases keep the
// input table order, with skipped DMUs placed at their original index.
func ConvertToJUnit(outcome *models.Outcome) *JUnitTestSuites {
	durationSec := float64(outcome.DurationMs) / 1000.0
	total := len(outcome.Records) + len(outcome.Warnings)

	suite := JUnitTestSuite{
		Name:      outcome.Model,
		Tests:     total,
		Errors:    len(outcome.Warnings),
		Time:      durationSec,
		Timestamp: outcome.Timestamp.Format(time.RFC3339),
		Properties: []JUnitProperty{
			{Name: "inputs", Value: fmt.Sprint(outcome.Setup.Inputs)},
			{Name: "outputs", Value: fmt.Sprint(outcome.Setup.Outputs)},
			{Name: "tolerance", Value: fmt.Sprint(outcome.Setup.Tolerance)},
		},
	}

	cases := make([]JUnitTestCase, 0, total)
	ri, wi := 0, 0
	for ri < len(outcome.Records) || wi < len(outcome.Warnings) {
		takeRecord := wi >= len(outcome.Warnings) ||
			(ri < len(outcome.Records) && outcome.Records[ri].Index < outcome.Warnings[wi].Index)
		if takeRecord {
			r := outcome.Records[ri]
			cases = append(cases, JUnitTestCase{
				Name:      r.DMU,
				Classname: outcome.Model,
				SystemOut: fmt.Sprintf("efficiency=%s reference_set=%s",
					FormatEfficiency(r.Efficiency), strings.Join(r.ReferenceSet, ",")),
			})
			ri++
			continue
		}
		w := outcome.Warnings[wi]
		cases = append(cases, JUnitTestCase{
			Name:      w.DMU,
			Classname: outcome.Model,
			Error:     &JUnitError{Message: w.Message, Type: string(w.Status)},
		})
		wi++
	}
	suite.TestCases = cases

	return &JUnitTestSuites{
		Tests:      total,
		Errors:     len(outcome.Warnings),
		Time:       durationSec,
		TestSuites: []JUnitTestSuite{suite},
	}
}

// WriteJUnitXML writes the outcome as JUnit XML.
func WriteJUnitXML(w io.Writer, outcome *models.Outcome) error {
	data, err := xml.MarshalIndent(ConvertToJUnit(outcome), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JUnit XML: %w", err)
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err = io.WriteString(w, "\n")
	return err
}

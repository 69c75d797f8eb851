package processor

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/afero"
)

// ExportJSON writes the whole result as indented JSON
func (r *Result) ExportJSON(fs afero.Fs, filename string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	if err := afero.WriteFile(fs, filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write JSON file: %w", err)
	}
	return nil
}

// ExportCSV writes the channel summary followed by the activation timeline
func (r *Result) ExportCSV(fs afero.Fs, filename string) error {
	file, err := fs.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	writer.Write([]string{"# MYOstack envelope analysis"})
	writer.Write([]string{"# File", r.File})
	writer.Write([]string{"# Protocol", string(r.Protocol)})
	writer.Write([]string{"# Sample Rate Hz", formatFloat(r.SampleRate)})
	writer.Write([]string{"# Records", strconv.Itoa(r.Records)})
	writer.Write([]string{"# Processing Time", r.ProcessingTime.Format("2006-01-02 15:04:05")})
	writer.Write([]string{""})

	writer.Write([]string{"Channel", "Mean", "RMS", "Min", "Max", "Peak_Activation", "Mean_Activation", "Dominant_Hz"})
	for _, c := range r.Channels {
		writer.Write([]string{
			strconv.Itoa(c.Channel),
			formatFloat(c.Mean),
			formatFloat(c.RMS),
			formatFloat(c.Min),
			formatFloat(c.Max),
			formatFloat(c.PeakLevel),
			formatFloat(c.MeanLevel),
			fmt.Sprintf("%.2f", c.DominantFreq),
		})
	}
	writer.Write([]string{""})

	header := []string{"Time_s"}
	for _, c := range r.Channels {
		header = append(header, fmt.Sprintf("Ch%d", c.Channel))
	}
	writer.Write(header)
	for _, f := range r.Timeline {
		row := []string{fmt.Sprintf("%.3f", f.Time)}
		for _, v := range f.Levels {
			row = append(row, formatFloat(v))
		}
		writer.Write(row)
	}

	writer.Flush()
	return writer.Error()
}

// ExportSpectrumCSV writes one row per frequency bin, one column per channel
func (r *Result) ExportSpectrumCSV(fs afero.Fs, filename string) error {
	file, err := fs.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if len(r.Spectra) == 0 {
		writer.Flush()
		return writer.Error()
	}

	header := []string{"Freq_Hz"}
	for _, s := range r.Spectra {
		header = append(header, fmt.Sprintf("Ch%d", s.Channel))
	}
	writer.Write(header)
	for i, f := range r.Spectra[0].Freqs {
		row := []string{fmt.Sprintf("%.3f", f)}
		for _, s := range r.Spectra {
			row = append(row, formatFloat(s.Mags[i]))
		}
		writer.Write(row)
	}

	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

package dashboard

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
)

const barWidth = 40

// RenderText writes the dashboard as plain tables and bar charts.
func RenderText(w io.Writer, d *Dashboard) error {
	var b strings.Builder

	b.WriteString("Urban Pulse Dashboard\n")
	b.WriteString("Real-Time Insights on Urban Wellbeing\n")
	fmt.Fprintf(&b, "generated %s\n", d.GeneratedAt.Format(time.DateTime))
	for _, warn := range d.Warnings {
		fmt.Fprintf(&b, "! %s\n", warn)
	}

	section(&b, "Weather Data")
	if len(d.Weather) > 0 {
		rows := make([][]string, len(d.Weather))
		for i, r := range d.Weather {
			rows[i] = []string{
				strconv.FormatInt(r.ID, 10), r.City,
				fmtFloat(r.Temperature), fmtFloat(r.Humidity),
				r.Description, r.Timestamp.Format(time.DateTime),
			}
		}
		table(&b, []string{"ID", "City", "Temperature", "Humidity", "Description", "Timestamp"}, rows)
	}

	section(&b, "Temperature Distribution")
	bars(&b, d.Temperature)

	section(&b, "Sensor Data")
	if len(d.Sensor) > 0 {
		rows := make([][]string, len(d.Sensor))
		for i, r := range d.Sensor {
			rows[i] = []string{
				strconv.FormatInt(r.ID, 10), strconv.Itoa(r.AirQualityIndex),
				fmtFloat(r.NoiseLevel), r.Timestamp.Format(time.DateTime),
			}
		}
		table(&b, []string{"ID", "AQI", "Noise (dB)", "Timestamp"}, rows)
	}

	section(&b, "Air Quality Distribution")
	bars(&b, d.AirQuality)

	section(&b, "Social Sentiment")
	if len(d.Social) > 0 {
		rows := make([][]string, len(d.Social))
		for i, r := range d.Social {
			rows[i] = []string{strconv.FormatInt(r.ID, 10), r.Text, r.Label, fmtFloat(r.Score)}
		}
		table(&b, []string{"ID", "Text", "Label", "Score"}, rows)
		counts := make([][]string, len(d.Sentiment))
		for i, c := range d.Sentiment {
			counts[i] = []string{c.Label, strconv.Itoa(c.Count)}
		}
		table(&b, []string{"Label", "Count"}, counts)
	}

	section(&b, "Urban Stress Index")
	if len(d.Stress) > 0 {
		rows := make([][]string, len(d.Stress))
		for i, s := range d.Stress {
			rows[i] = []string{
				s.Timestamp.Format(time.DateTime), s.City,
				strconv.Itoa(s.AirQualityIndex), fmtFloat(s.NoiseLevel),
				fmtFloat(s.SentimentFactor), fmtFloat(s.UrbanStressIndex), string(s.Anomaly),
			}
		}
		table(&b, []string{"Timestamp", "City", "AQI", "Noise", "Sentiment", "Stress", "Anomaly"}, rows)
		fmt.Fprintf(&b, "%d of %d samples flagged as anomalies\n", d.Anomalies, len(d.Stress))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func section(b *strings.Builder, title string) {
	fmt.Fprintf(b, "\n== %s ==\n", title)
}

func table(w io.Writer, header []string, rows [][]string) {
	t := tablewriter.NewWriter(w)
	t.SetAutoWrapText(false)
	t.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
	t.SetAutoFormatHeaders(false)
	t.SetBorder(true)
	t.SetRowLine(true)
	t.SetHeader(header)
	for _, r := range rows {
		t.Append(r)
	}
	t.Render()
}

func bars(b *strings.Builder, bins []Bin) {
	if len(bins) == 0 {
		b.WriteString("(no data)\n")
		return
	}
	peak := 0
	for _, bin := range bins {
		peak = max(peak, bin.Count)
	}
	for _, bin := range bins {
		n := 0
		if peak > 0 {
			n = bin.Count * barWidth / peak
		}
		fmt.Fprintf(b, "%8.2f - %-8.2f | %-*s %d\n", bin.Lo, bin.Hi, barWidth, strings.Repeat("#", n), bin.Count)
	}
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

package download

import "io"

const progressStep = 10

// progressWriter reports percent complete each time another step is crossed.
type progressWriter struct {
	w       io.Writer
	total   int64
	written int64
	next    int
	report  func(int)
}

func newProgressWriter(w io.Writer, total int64, report func(int)) *progressWriter {
	return &progressWriter{w: w, total: total, next: progressStep, report: report}
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)

	percent := int(p.written * 100 / p.total)
	for p.next <= 100 && percent >= p.next {
		p.report(p.next)
		p.next += progressStep
	}
	return n, err
}

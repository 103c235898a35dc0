package extract

// TXT treats a whole UTF-8 text file as one section.
type TXT struct{}

var _ Extractor = TXT{}

func (TXT) Format() Format { return FormatTXT }

func (TXT) CanExtract(_ []byte, ext string) bool {
	return ext == "txt"
}

func (TXT) Extract(buf []byte) ([]string, error) {
	if err := validUTF8("text", buf); err != nil {
		return nil, err
	}
	buf = trimBOM(buf)
	if len(buf) == 0 {
		return nil, nil
	}
	return []string{string(buf)}, nil
}

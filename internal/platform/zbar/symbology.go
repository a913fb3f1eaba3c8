package zbar

import (
	"strings"

	"scanbridge/internal/domain"
)

// zbar config names, used with -S<name>.enable.
var symbologyConfigNames = map[domain.BarcodeFormat]string{
	domain.BarcodeFormatCode128: "code128",
	domain.BarcodeFormatCode39:  "code39",
	domain.BarcodeFormatCode93:  "code93",
	domain.BarcodeFormatCodabar: "codabar",
	domain.BarcodeFormatEAN13:   "ean13",
	domain.BarcodeFormatEAN8:    "ean8",
	domain.BarcodeFormatITF:     "i25",
	domain.BarcodeFormatQRCode:  "qrcode",
	domain.BarcodeFormatUPCA:    "upca",
	domain.BarcodeFormatUPCE:    "upce",
	domain.BarcodeFormatPDF417:  "pdf417",
}

// Names zbar prints in front of each decoded payload.
var outputSymbologies = map[string]domain.BarcodeFormat{
	"CODE-128": domain.BarcodeFormatCode128,
	"CODE-39":  domain.BarcodeFormatCode39,
	"CODE-93":  domain.BarcodeFormatCode93,
	"CODABAR":  domain.BarcodeFormatCodabar,
	"EAN-13":   domain.BarcodeFormatEAN13,
	"ISBN-13":  domain.BarcodeFormatEAN13,
	"ISBN-10":  domain.BarcodeFormatEAN13,
	"EAN-8":    domain.BarcodeFormatEAN8,
	"I2/5":     domain.BarcodeFormatITF,
	"QR-CODE":  domain.BarcodeFormatQRCode,
	"UPC-A":    domain.BarcodeFormatUPCA,
	"UPC-E":    domain.BarcodeFormatUPCE,
	"PDF417":   domain.BarcodeFormatPDF417,
}

// symbologyArgs restricts zbar to formats. It returns the formats zbar
// cannot decode so the caller can report them.
func symbologyArgs(formats []domain.BarcodeFormat) (args []string, unsupported []domain.BarcodeFormat) {
	if len(formats) == 0 {
		return nil, nil
	}
	for _, format := range formats {
		if format == domain.BarcodeFormatAll {
			return nil, nil
		}
	}

	args = append(args, "-Sdisable")
	for _, format := range formats {
		name, ok := symbologyConfigNames[format]
		if !ok {
			unsupported = append(unsupported, format)
			continue
		}
		args = append(args, "-S"+name+".enable")
	}
	return args, unsupported
}

// parseLine splits a "SYMBOLOGY:payload" line. Payloads may contain colons.
func parseLine(line string) (domain.Barcode, bool) {
	symbology, payload, found := strings.Cut(line, ":")
	if !found || payload == "" {
		return domain.Barcode{}, false
	}
	format, ok := outputSymbologies[strings.ToUpper(strings.TrimSpace(symbology))]
	if !ok {
		format = domain.BarcodeFormatUnknown
	}
	return domain.Barcode{RawValue: payload, DisplayValue: payload, Format: format}, true
}

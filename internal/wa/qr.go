package wa

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mdp/qrterminal/v3"
	"github.com/skip2/go-qrcode"
)

const qrImageSize = 256

func printQR(w io.Writer, code string) {
	_, _ = fmt.Fprintln(w, "Scan this QR code with WhatsApp (Linked devices):")
	qrterminal.GenerateHalfBlock(code, qrterminal.L, w)
}

// writeQRImage stores the code as a PNG so it can be scanned from another
// machine when the terminal is not at hand.
func writeQRImage(code, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create qr dir: %w", err)
	}
	if err := qrcode.WriteFile(code, qrcode.Medium, qrImageSize, path); err != nil {
		return fmt.Errorf("write qr image: %w", err)
	}
	return nil
}

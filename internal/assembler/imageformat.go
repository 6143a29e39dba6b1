package assembler

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/gif"
	_ "image/jpeg" // register decoder for image.DecodeConfig
	_ "image/png"  // register decoder for image.DecodeConfig

	gateway "github.com/zhengwenj/cursor-api-sub001/internal"
)

// probeImage returns (width, height) for a validated image, rejecting
// animated GIFs per §4.6 step 4 ("reject animated GIFs (frame count > 1)").
// There is no WEBP decoder anywhere in the example corpus, so its
// dimensions are read directly off the RIFF container header instead of
// through image.DecodeConfig.
func probeImage(mimeType string, data []byte) (width, height int, err error) {
	switch mimeType {
	case "image/png", "image/jpeg":
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return 0, 0, fmt.Errorf("%w: decode config: %v", gateway.ErrImageUnsupported, err)
		}
		return cfg.Width, cfg.Height, nil

	case "image/gif":
		g, err := gif.DecodeAll(bytes.NewReader(data))
		if err != nil {
			return 0, 0, fmt.Errorf("%w: decode gif: %v", gateway.ErrImageUnsupported, err)
		}
		if len(g.Image) > 1 {
			return 0, 0, gateway.ErrImageUnsupported
		}
		return g.Config.Width, g.Config.Height, nil

	case "image/webp":
		return probeWebP(data)

	default:
		return 0, 0, gateway.ErrImageUnsupported
	}
}

// probeWebP parses just enough of the RIFF/WEBP container to recover
// canvas dimensions and animation status, covering the three chunk
// layouts Cursor clients actually emit: VP8X (extended, carries explicit
// width/height and an animation flag), VP8L (lossless), and VP8 (simple
// lossy key frame).
func probeWebP(data []byte) (int, int, error) {
	if len(data) < 16 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WEBP" {
		return 0, 0, gateway.ErrImageUnsupported
	}

	switch string(data[12:16]) {
	case "VP8X":
		if len(data) < 30 {
			return 0, 0, gateway.ErrImageUnsupported
		}
		flags := data[20]
		if flags&0x02 != 0 { // ANIM bit
			return 0, 0, gateway.ErrImageUnsupported
		}
		w := int(data[24]) | int(data[25])<<8 | int(data[26])<<16
		h := int(data[27]) | int(data[28])<<8 | int(data[29])<<16
		return w + 1, h + 1, nil

	case "VP8L":
		if len(data) < 25 || data[20] != 0x2f {
			return 0, 0, gateway.ErrImageUnsupported
		}
		bits := uint32(data[21]) | uint32(data[22])<<8 | uint32(data[23])<<16 | uint32(data[24])<<24
		w := int(bits&0x3fff) + 1
		h := int((bits>>14)&0x3fff) + 1
		return w, h, nil

	case "VP8 ":
		if len(data) < 30 || data[23] != 0x9d || data[24] != 0x01 || data[25] != 0x2a {
			return 0, 0, gateway.ErrImageUnsupported
		}
		w := int(binary.LittleEndian.Uint16(data[26:28])) & 0x3fff
		h := int(binary.LittleEndian.Uint16(data[28:30])) & 0x3fff
		return w, h, nil

	default:
		return 0, 0, gateway.ErrImageUnsupported
	}
}

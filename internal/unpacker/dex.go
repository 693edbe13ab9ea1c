package unpacker

import (
	"io"
	"os"
)

// dexHeaderSize DEX header 最小长度
const dexHeaderSize = 112

// GetDEXInfo 读取 DEX magic 和版本
func GetDEXInfo(dexPath string) (*DEXInfo, error) {
	info := &DEXInfo{
		FilePath: dexPath,
	}

	file, err := os.Open(dexPath)
	if err != nil {
		return info, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return info, err
	}
	info.FileSize = stat.Size()

	header := make([]byte, 8)
	if _, err := io.ReadFull(file, header); err != nil {
		return info, nil
	}

	// DEX magic: "dex\n035\0"，ODEX magic: "dey\n036\0"
	magic := string(header[:4])
	if (magic == "dex\n" || magic == "dey\n") && info.FileSize >= dexHeaderSize {
		info.IsValid = true
		info.Version = string(header[4:7])
	}

	return info, nil
}

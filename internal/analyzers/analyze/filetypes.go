package analyze

import "strings"

// fileTypes maps lowercase extensions to human-readable type labels used
// in results and reports.
var fileTypes = map[string]string{
	".jpg":   "JPEG Image",
	".jpeg":  "JPEG Image",
	".png":   "PNG Image",
	".gif":   "GIF Image",
	".bmp":   "BMP Image",
	".tiff":  "TIFF Image",
	".tif":   "TIFF Image",
	".webp":  "WebP Image",
	".pdf":   "PDF Document",
	".doc":   "Word Document",
	".docx":  "Word Document",
	".xls":   "Excel Spreadsheet",
	".xlsx":  "Excel Spreadsheet",
	".ppt":   "PowerPoint Presentation",
	".pptx":  "PowerPoint Presentation",
	".txt":   "Text File",
	".md":    "Markdown Document",
	".csv":   "CSV File",
	".rtf":   "RTF Document",
	".odt":   "OpenDocument Text",
	".html":  "HTML Document",
	".htm":   "HTML Document",
	".xml":   "XML Document",
	".json":  "JSON File",
	".mp3":   "MP3 Audio",
	".flac":  "FLAC Audio",
	".ogg":   "OGG Audio",
	".m4a":   "M4A Audio",
	".wav":   "WAV Audio",
	".aac":   "AAC Audio",
	".wma":   "WMA Audio",
	".mp4":   "MP4 Video",
	".avi":   "AVI Video",
	".mkv":   "Matroska Video",
	".mov":   "QuickTime Video",
	".wmv":   "WMV Video",
	".webm":  "WebM Video",
	".log":   "Log File",
	".pcap":  "Packet Capture",
	".cap":   "Packet Capture",
	".conf":  "Configuration File",
	".cfg":   "Configuration File",
	".exe":   "Windows Executable",
	".dll":   "Windows Library",
	".scr":   "Windows Screensaver",
	".bat":   "Batch Script",
	".cmd":   "Command Script",
	".ps1":   "PowerShell Script",
	".vbs":   "VBScript",
	".js":    "JavaScript",
	".jar":   "Java Archive",
	".apk":   "Android Package",
	".dex":   "Dalvik Executable",
	".so":    "Shared Object",
	".dylib": "macOS Library",
	".bin":   "Binary File",
	".com":   "DOS Executable",
	".pif":   "Program Information File",
}

// TypeForExtension returns the display type for a file extension,
// or "Unknown" for unmapped extensions. The extension may be passed
// with or without the leading dot, in any case.
func TypeForExtension(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	if label, ok := fileTypes[ext]; ok {
		return label
	}

	return "Unknown"
}

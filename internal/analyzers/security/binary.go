package security

import (
	"archive/zip"
	"bufio"
	"bytes"
	"debug/elf"
	"debug/pe"
	"path/filepath"
	"strings"
	"time"

	"github.com/forensiq/filescope/internal/analyzers/analyze"
)

var peMachineNames = map[uint16]string{
	pe.IMAGE_FILE_MACHINE_I386:  "x86",
	pe.IMAGE_FILE_MACHINE_AMD64: "x86-64",
	pe.IMAGE_FILE_MACHINE_ARM:   "arm",
	pe.IMAGE_FILE_MACHINE_ARM64: "arm64",
}

var standardPESections = map[string]struct{}{
	".text": {}, ".data": {}, ".rdata": {}, ".rsrc": {}, ".reloc": {},
	".idata": {}, ".edata": {}, ".pdata": {}, ".bss": {}, ".tls": {},
	".debug": {}, ".xdata": {},
}

// analyzePE reads the COFF header and section table. Parse failures are
// noted in metadata rather than failing the result, since entropy and IOC
// findings are still valid for a corrupt executable.
func analyzePE(res *analyze.Result, path string) {
	res.Metadata["executable_format"] = "PE"
	res.FileType = "Windows Executable"

	pf, openErr := pe.Open(path)
	if openErr != nil {
		res.Metadata["parse_error"] = openErr.Error()

		return
	}
	defer pf.Close()

	machine := peMachineNames[pf.FileHeader.Machine]
	if machine == "" {
		machine = "unknown"
	}

	res.Metadata["pe_machine"] = machine
	res.Metadata["pe_is_dll"] = pf.FileHeader.Characteristics&pe.IMAGE_FILE_DLL != 0
	res.Metadata["pe_section_count"] = int(pf.FileHeader.NumberOfSections)

	var indicators []string

	names := make([]string, 0, len(pf.Sections))
	for _, sec := range pf.Sections {
		names = append(names, sec.Name)

		const writeExec = pe.IMAGE_SCN_MEM_WRITE | pe.IMAGE_SCN_MEM_EXECUTE
		if sec.Characteristics&writeExec == writeExec {
			indicators = append(indicators, "writable executable section "+sec.Name)
		}

		if _, known := standardPESections[sec.Name]; !known {
			indicators = append(indicators, "nonstandard section name "+sec.Name)
		}
	}

	res.Metadata["pe_sections"] = names

	stamp := time.Unix(int64(pf.FileHeader.TimeDateStamp), 0).UTC()

	switch {
	case pf.FileHeader.TimeDateStamp == 0:
		indicators = append(indicators, "zeroed build timestamp")
	case stamp.After(time.Now().UTC()):
		indicators = append(indicators, "build timestamp in the future")
		res.Metadata["pe_timestamp"] = stamp.Format(time.RFC3339)
	default:
		res.Metadata["pe_timestamp"] = stamp.Format(time.RFC3339)
	}

	if len(indicators) > 0 {
		res.Metadata["pe_indicators"] = indicators
	}
}

var elfTypeNames = map[elf.Type]string{
	elf.ET_EXEC: "executable",
	elf.ET_DYN:  "shared object",
	elf.ET_REL:  "relocatable",
	elf.ET_CORE: "core dump",
}

var elfMachineNames = map[elf.Machine]string{
	elf.EM_X86_64:  "x86-64",
	elf.EM_386:     "x86",
	elf.EM_AARCH64: "arm64",
	elf.EM_ARM:     "arm",
	elf.EM_RISCV:   "riscv",
}

const importedLibraryLimit = 10

func analyzeELF(res *analyze.Result, path string) {
	res.Metadata["executable_format"] = "ELF"
	res.FileType = "ELF Binary"

	ef, openErr := elf.Open(path)
	if openErr != nil {
		res.Metadata["parse_error"] = openErr.Error()

		return
	}
	defer ef.Close()

	class := "32-bit"
	if ef.Class == elf.ELFCLASS64 {
		class = "64-bit"
	}

	machine := elfMachineNames[ef.Machine]
	if machine == "" {
		machine = ef.Machine.String()
	}

	kind := elfTypeNames[ef.Type]
	if kind == "" {
		kind = ef.Type.String()
	}

	res.Metadata["elf_class"] = class
	res.Metadata["elf_machine"] = machine
	res.Metadata["elf_type"] = kind
	res.Metadata["elf_section_count"] = len(ef.Sections)

	if libs, libErr := ef.ImportedLibraries(); libErr == nil && len(libs) > 0 {
		if len(libs) > importedLibraryLimit {
			libs = libs[:importedLibraryLimit]
		}

		res.Metadata["elf_imported_libraries"] = libs
	}
}

// analyzeArchive classifies ZIP-based executables: Java archives and
// Android packages both travel as ZIP containers.
func analyzeArchive(res *analyze.Result, path string) {
	zr, openErr := zip.OpenReader(path)
	if openErr != nil {
		res.Metadata["parse_error"] = openErr.Error()

		return
	}
	defer zr.Close()

	var (
		hasManifest        bool
		hasDex             bool
		hasAndroidManifest bool
		classFiles         int
	)

	for _, entry := range zr.File {
		switch {
		case entry.Name == "META-INF/MANIFEST.MF":
			hasManifest = true
		case entry.Name == "classes.dex":
			hasDex = true
		case entry.Name == "AndroidManifest.xml":
			hasAndroidManifest = true
		case strings.HasSuffix(entry.Name, ".class"):
			classFiles++
		}
	}

	kind := "ZIP Archive"

	switch {
	case hasDex || hasAndroidManifest:
		kind = "Android Package"
	case hasManifest || classFiles > 0:
		kind = "Java Archive"
	}

	res.FileType = kind
	res.Metadata["executable_format"] = kind
	res.Metadata["archive_entries"] = len(zr.File)
	res.Metadata["has_manifest"] = hasManifest
	res.Metadata["contains_dex"] = hasDex
	res.Metadata["class_file_count"] = classFiles

	if hasManifest {
		if mainClass := manifestMainClass(&zr.Reader); mainClass != "" {
			res.Metadata["main_class"] = mainClass
		}
	}
}

func manifestMainClass(zr *zip.Reader) string {
	entry, openErr := zr.Open("META-INF/MANIFEST.MF")
	if openErr != nil {
		return ""
	}
	defer entry.Close()

	scanner := bufio.NewScanner(entry)
	for scanner.Scan() {
		line := scanner.Text()
		if rest, found := strings.CutPrefix(line, "Main-Class:"); found {
			return strings.TrimSpace(rest)
		}
	}

	return ""
}

// attachShebang records the interpreter line of script files.
func attachShebang(res *analyze.Result, head []byte) {
	line := head[2:]
	if idx := bytes.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}

	shebang := strings.TrimSpace(string(line))
	if shebang == "" {
		return
	}

	res.Metadata["shebang"] = shebang

	fields := strings.Fields(shebang)
	interpreter := filepath.Base(fields[0])

	// "#!/usr/bin/env python3" names the interpreter in the second field.
	if interpreter == "env" && len(fields) > 1 {
		interpreter = fields[1]
	}

	res.Metadata["interpreter"] = interpreter
}

package feeds

import (
	"bytes"
	"fmt"

	"github.com/travigo/avlengine/pkg/ctdf"
	"github.com/travigo/avlengine/pkg/siri_vm"
)

const siriVMSource = siri_vm.Source

func DecodeSiriVM(body []byte) ([]ctdf.AvlReport, error) {
	siriVM, err := siri_vm.ParseXML(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing SIRI-VM: %w", err)
	}
	return siriVM.AvlReports(), nil
}

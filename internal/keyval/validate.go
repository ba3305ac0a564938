package keyval

import "github.com/aledsdavies/configmaton/internal/blob"

func validateBytesSediment(buf []byte, off uint64) error {
	return blob.ValidateSediment(buf, off, func(elemOff uint64) (uint64, error) {
		if err := blob.ValidateBytes(buf, elemOff); err != nil {
			return 0, err
		}
		return bytesNext(buf)(elemOff), nil
	})
}

func validateLeaf(buf []byte, leafOff uint64, validateStateRef func(uint64) error) (uint64, error) {
	if err := blob.ValidateVector(buf, leafOff, validateStateRef); err != nil {
		return 0, err
	}
	l := LeafView{buf, leafOff}
	if err := validateBytesSediment(buf, l.getOldsOff()); err != nil {
		return 0, err
	}
	if err := validateBytesSediment(buf, l.extsOff()); err != nil {
		return 0, err
	}
	return bytesSedimentEnd(buf, l.extsOff()), nil
}

func validateTran(buf []byte, valueOff uint64, validateCharRef, validateStateRef func(uint64) error) error {
	if err := blob.ValidateBytes(buf, valueOff); err != nil {
		return err
	}
	t := TranView{buf, valueOff}
	if err := blob.ValidateVector(buf, t.initsOff(), validateCharRef); err != nil {
		return err
	}
	_, err := blob.ValidateBDD(buf, t.finalsOff(), func(leafOff uint64) (uint64, error) {
		return validateLeaf(buf, leafOff, validateStateRef)
	})
	return err
}

// ValidateState bounds-checks one KeyValState's Tran chain: every Tran's
// key, init offsets (checked via validateCharRef, which should confirm the
// offset lands on a compiled character state) and BDD (whose leaves'
// successor state offsets are checked via validateStateRef). It does not
// recurse into the states validateStateRef accepts — the top-level loader
// calls ValidateState once per reachable state, so recursing here would
// just revalidate the same offsets repeatedly.
func ValidateState(buf []byte, off uint64, validateCharRef, validateStateRef func(uint64) error) error {
	if err := blob.CheckField(buf, off, blob.WordSize, blob.WordSize); err != nil {
		return err
	}
	head := StateView{buf, off}.head()
	return blob.ValidateIntrusiveList(buf, head, func(valueOff uint64) error {
		return validateTran(buf, valueOff, validateCharRef, validateStateRef)
	})
}
